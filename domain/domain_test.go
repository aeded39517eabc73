package domain

import (
	"strings"
	"testing"
	"time"
)

func TestEntityKinds(t *testing.T) {
	tests := []struct {
		name   string
		entity Entity
		kind   EntityKind
	}{
		{"person", &Person{Id: 1, ApId: "https://a.example/u/alice"}, KindPerson},
		{"community", &Community{Id: 2, ApId: "https://a.example/c/golang"}, KindCommunity},
		{"post", &Post{Id: 3, ApId: "https://a.example/post/3"}, KindPost},
		{"comment", &Comment{Id: 4, ApId: "https://a.example/comment/4", Deleted: true}, KindComment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.entity.EntityKind() != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, tt.entity.EntityKind())
			}
			if tt.entity.LocalId() == 0 {
				t.Error("LocalId should be set")
			}
			if !strings.HasPrefix(tt.entity.RemoteId(), "https://a.example/") {
				t.Errorf("Unexpected RemoteId %s", tt.entity.RemoteId())
			}
		})
	}
}

func TestActorsExposePublicKey(t *testing.T) {
	var actors = []Actor{
		&Person{PublicKey: "-----BEGIN PUBLIC KEY-----"},
		&Community{PublicKey: "-----BEGIN PUBLIC KEY-----"},
	}
	for _, a := range actors {
		if a.PublicKeyPem() == "" {
			t.Errorf("%s should expose its public key", a.EntityKind())
		}
	}
}

func TestDescribe(t *testing.T) {
	if Describe(nil) != "<nil>" {
		t.Errorf("Describe(nil) = %q", Describe(nil))
	}

	got := Describe(&Comment{Id: 9, ApId: "https://peer/comments/9"})
	if got != "comment #9 (https://peer/comments/9)" {
		t.Errorf("Unexpected description: %s", got)
	}
}

func TestPersonToString(t *testing.T) {
	p := &Person{Id: 7, Name: "alice", ApId: "https://peer/u/alice", Published: time.Now()}
	result := p.ToString()
	if !strings.Contains(result, "alice") || !strings.Contains(result, "https://peer/u/alice") {
		t.Errorf("ToString() should contain name and ap id, got: %s", result)
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now()
	evt := NewEvent(KindComment, 9, OpDelete, nil)

	if evt.EntityKind != KindComment || evt.LocalId != 9 || evt.Operation != OpDelete {
		t.Errorf("Unexpected event: %+v", evt)
	}
	if evt.CreatedAt.Before(before) {
		t.Error("CreatedAt should be set to now")
	}

	other := NewEvent(KindComment, 9, OpDelete, nil)
	if evt.Id == other.Id {
		t.Error("Every event should get its own id")
	}
}
