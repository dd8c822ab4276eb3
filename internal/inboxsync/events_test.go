package inboxsync

import "testing"

func TestClassifyEventHeartbeat(t *testing.T) {
	_, class := classifyEvent([]byte(`{"type": "heartbeat"}`))
	if class != eventHeartbeat {
		t.Fatalf("expected heartbeat class, got %d", class)
	}
}

func TestClassifyEventMalformedJSON(t *testing.T) {
	_, class := classifyEvent([]byte(`{"type": `))
	if class != eventMalformed {
		t.Fatalf("expected malformed class, got %d", class)
	}
}

func TestClassifyEventMissingIdentity(t *testing.T) {
	_, class := classifyEvent([]byte(`{"type": "generic", "message": "hi"}`))
	if class != eventMalformed {
		t.Fatalf("expected event without id/recipient to be malformed, got %d", class)
	}
	_, class = classifyEvent([]byte(`{"id": "n1", "type": "generic", "message": "hi"}`))
	if class != eventMalformed {
		t.Fatalf("expected event without recipient to be malformed, got %d", class)
	}
}

func TestClassifyEventGenericNotification(t *testing.T) {
	n, class := classifyEvent([]byte(`{"id": "n1", "recipientId": "u1", "type": "generic", "message": "submission graded"}`))
	if class != eventNotification {
		t.Fatalf("expected notification class, got %d", class)
	}
	if n.ID != "n1" || n.RecipientID != "u1" || n.Message != "submission graded" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestClassifyEventTeamInviteCarriesProjectFields(t *testing.T) {
	raw := []byte(`{"id": "n2", "recipientId": "u1", "type": "team_invite", "projectId": "p7", "projectName": "Capstone", "inviterId": "faculty9"}`)
	n, class := classifyEvent(raw)
	if class != eventNotification {
		t.Fatalf("expected notification class, got %d", class)
	}
	if n.Type != TypeTeamInvite || n.ProjectID != "p7" || n.ProjectName != "Capstone" || n.InviterID != "faculty9" {
		t.Fatalf("unexpected invite payload %+v", n)
	}
}
