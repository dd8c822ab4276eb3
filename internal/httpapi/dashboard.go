package httpapi

import (
	"fmt"
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>InboxRelay Console</title>
  <style>
    :root {
      --ink: #102223;
      --paper: #f8f4ea;
      --card: #fffdf9;
      --line: #d7cbb3;
      --accent: #1f9d88;
      --accent-2: #e88a3d;
      --danger: #c2483f;
      --muted: #6f7d7d;
      --shadow: 0 18px 36px rgba(16, 34, 35, 0.16);
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background:
        radial-gradient(1200px 500px at -5% -10%, rgba(232, 138, 61, 0.18), transparent 60%),
        linear-gradient(140deg, #fff9ef 0%, #f1f8f7 45%, #fffdf9 100%);
      min-height: 100vh;
      padding: 20px;
    }

    .shell { max-width: 900px; margin: 0 auto; display: grid; gap: 14px; }

    .bar, .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 18px;
      padding: 16px;
      box-shadow: var(--shadow);
    }

    h1 { margin: 0; font-size: clamp(1.2rem, 2vw, 1.75rem); }
    .sub { margin-top: 6px; color: var(--muted); font-size: 0.9rem; }

    .controls { display: grid; gap: 10px; grid-template-columns: 2fr auto auto; margin-top: 12px; }
    .controls input {
      width: 100%;
      border-radius: 10px;
      border: 1px solid var(--line);
      padding: 10px 12px;
      font-size: 0.92rem;
      outline: none;
    }
    .controls input:focus { border-color: var(--accent); }

    button {
      border: 0;
      border-radius: 10px;
      padding: 10px 12px;
      font-family: inherit;
      font-weight: 700;
      cursor: pointer;
    }
    .btn-primary { background: var(--accent); color: #ffffff; }
    .btn-secondary { background: #f2ede2; color: var(--ink); border: 1px solid var(--line); }

    ul { list-style: none; margin: 0; padding: 0; display: grid; gap: 8px; }
    li {
      border: 1px solid var(--line);
      border-radius: 12px;
      padding: 10px 12px;
      display: flex;
      justify-content: space-between;
      gap: 10px;
      background: #ffffff;
    }
    li.unread { border-left: 4px solid var(--accent-2); }
    .meta { color: var(--muted); font-size: 0.82rem; }
    .badge {
      display: inline-block;
      border-radius: 999px;
      padding: 2px 10px;
      font-size: 0.78rem;
      background: rgba(31, 157, 136, 0.14);
      color: var(--accent);
    }
    .status { margin-top: 8px; font-size: 0.85rem; color: var(--muted); }
    .status.err { color: var(--danger); }
  </style>
</head>
<body>
  <div class="shell">
    <div class="bar">
      <h1>InboxRelay Console</h1>
      <div class="sub">Inspect a user's inbox with an API token. Unread entries are flagged.</div>
      <div class="controls">
        <input id="token" type="password" placeholder="bearer token" autocomplete="off" />
        <button id="refresh" class="btn-primary" type="button">Refresh</button>
        <button id="readall" class="btn-secondary" type="button">Mark All Read</button>
      </div>
      <div id="status" class="status">enter token to start</div>
    </div>
    <div class="card">
      <div class="sub">Inbox <span id="unread" class="badge">0 unread</span></div>
      <ul id="rows"></ul>
    </div>
  </div>
  <script>
    (function () {
      const dom = {
        token: document.getElementById("token"),
        refresh: document.getElementById("refresh"),
        readall: document.getElementById("readall"),
        status: document.getElementById("status"),
        rows: document.getElementById("rows"),
        unread: document.getElementById("unread"),
      };

      function setStatus(text, kind) {
        dom.status.textContent = text;
        dom.status.className = kind === "err" ? "status err" : "status";
      }

      async function request(path, method) {
        const res = await fetch(path, {
          method: method || "GET",
          headers: {
            "Authorization": "Bearer " + dom.token.value.trim(),
            "X-Correlation-Id": "dash_" + Date.now(),
          },
        });
        const body = await res.json().catch(() => ({}));
        if (!res.ok) {
          throw new Error(body.message || ("http " + res.status));
        }
        return body;
      }

      function render(notifications) {
        dom.rows.innerHTML = "";
        let unread = 0;
        notifications.forEach((n) => {
          if (!n.isRead) { unread++; }
          const li = document.createElement("li");
          if (!n.isRead) { li.className = "unread"; }
          const text = document.createElement("span");
          text.textContent = n.type === "team_invite"
            ? ("invite to " + (n.projectName || n.projectId) + " from " + n.inviterId)
            : (n.message || "");
          li.appendChild(text);
          const meta = document.createElement("span");
          meta.className = "meta";
          meta.textContent = (n.timestamp || "") + " | " + n.id;
          li.appendChild(meta);
          dom.rows.appendChild(li);
        });
        dom.unread.textContent = unread + " unread";
      }

      async function refresh() {
        try {
          const body = await request("/v1/notifications/inbox");
          render(body.notifications || []);
          setStatus("ok", "ok");
          window.localStorage.setItem("inboxrelay_dashboard_token", dom.token.value.trim());
        } catch (err) {
          setStatus(String(err && err.message ? err.message : err), "err");
        }
      }

      dom.refresh.addEventListener("click", refresh);
      dom.readall.addEventListener("click", async function () {
        try {
          await request("/v1/notifications/read-all", "POST");
          await refresh();
        } catch (err) {
          setStatus(String(err && err.message ? err.message : err), "err");
        }
      });
      dom.token.addEventListener("change", refresh);

      const saved = window.localStorage.getItem("inboxrelay_dashboard_token") || "";
      dom.token.value = saved;
      if (saved) { refresh(); }
    })();
  </script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, dashboardHTML)
}
