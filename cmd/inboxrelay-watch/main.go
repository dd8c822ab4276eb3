package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/campusworks/inboxrelay/internal/inboxsync"
)

type sessionCredentials struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

func main() {
	baseURL := flag.String("base-url", envOrDefault("INBOXRELAY_BASE_URL", "http://127.0.0.1:8080"), "inboxrelay base URL")
	sessionFile := flag.String("session-file", strings.TrimSpace(os.Getenv("INBOXRELAY_SESSION_FILE")), "JSON file holding token and userId")
	token := flag.String("token", strings.TrimSpace(os.Getenv("INBOXRELAY_TOKEN")), "bearer token (ignored when --session-file is set)")
	userID := flag.String("user", strings.TrimSpace(os.Getenv("INBOXRELAY_USER")), "user id (ignored when --session-file is set)")
	interval := flag.Duration("interval", durationEnv("INBOXRELAY_PULL_INTERVAL", inboxsync.DefaultPullInterval), "inbox refresh interval")
	flag.Parse()

	if strings.TrimSpace(*sessionFile) == "" && (strings.TrimSpace(*token) == "" || strings.TrimSpace(*userID) == "") {
		log.Fatalf("either --session-file or both --token and --user are required")
	}

	controller := inboxsync.NewController(
		func(token, userID string) inboxsync.RemoteClient {
			return inboxsync.NewHTTPClient(*baseURL, token, userID, nil)
		},
		inboxsync.Options{
			PullInterval: *interval,
			Logger:       log.Default(),
			OnMembershipChanged: func() {
				log.Printf("project membership changed, refresh project views")
			},
		},
	)
	defer controller.Clear()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reportUnread(rootCtx, controller)

	if strings.TrimSpace(*sessionFile) == "" {
		controller.SetIdentity(*token, *userID)
		<-rootCtx.Done()
		log.Printf("inbox watch stopping: %v", rootCtx.Err())
		return
	}

	applySessionFile(controller, *sessionFile)
	if err := watchSessionFile(rootCtx, controller, *sessionFile); err != nil {
		log.Fatalf("session file watch failed: %v", err)
	}
	log.Printf("inbox watch stopping: %v", rootCtx.Err())
}

// applySessionFile loads credentials and swaps the controller's
// identity. A missing or unreadable file clears the session; polling
// and the stream stop until credentials come back.
func applySessionFile(controller *inboxsync.Controller, path string) {
	creds, err := loadSessionFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("session file %s unusable: %v", path, err)
		}
		controller.Clear()
		return
	}
	controller.SetIdentity(creds.Token, creds.UserID)
	log.Printf("session active for %s", creds.UserID)
}

func loadSessionFile(path string) (sessionCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sessionCredentials{}, err
	}
	var creds sessionCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return sessionCredentials{}, err
	}
	if strings.TrimSpace(creds.Token) == "" || strings.TrimSpace(creds.UserID) == "" {
		return sessionCredentials{}, errors.New("session file needs token and userId")
	}
	return creds, nil
}

// watchSessionFile reapplies the session whenever the file changes.
// The parent directory is watched because editors and secret managers
// typically replace the file by rename.
func watchSessionFile(ctx context.Context, controller *inboxsync.Controller, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	// Coalesce event bursts from atomic replaces.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				pending = time.After(100 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("session file watcher error: %v", err)
		case <-pending:
			pending = nil
			applySessionFile(controller, absPath)
		}
	}
}

func reportUnread(ctx context.Context, controller *inboxsync.Controller) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := controller.UnreadCount(); n != last {
				log.Printf("unread notifications: %d", n)
				last = n
			}
		}
	}
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
