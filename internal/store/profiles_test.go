package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/model"
)

func TestEnsureProfileCreatesDefault(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	// A credentials row without a profile, as left by an older account.
	res, err := database.Exec(`INSERT INTO users (email, password_hash) VALUES ('old@example.com', 'h')`)
	if err != nil {
		t.Fatalf("inserting user: %v", err)
	}
	id, _ := res.LastInsertId()

	p, err := EnsureProfile(ctx, database, id, "old@example.com")
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if p.Role != model.RoleUser {
		t.Errorf("expected default role user, got %q", p.Role)
	}
}

func TestEnsureProfileKeepsExisting(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	ident, _ := CreateIdentity(ctx, database, NewIdentity{Email: "e@example.com", PasswordHash: "h", Role: model.RoleEmployee, Name: "Eva"})

	p, err := EnsureProfile(ctx, database, ident.ID, "e@example.com")
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if p.Role != model.RoleEmployee || p.Name != "Eva" {
		t.Errorf("expected existing profile to be kept, got %+v", p)
	}
}

func TestEnsureProfileConcurrentConverges(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	res, _ := database.Exec(`INSERT INTO users (email, password_hash) VALUES ('race@example.com', 'h')`)
	id, _ := res.LastInsertId()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := EnsureProfile(ctx, database, id, "race@example.com"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("EnsureProfile: %v", err)
	}

	var n int
	database.QueryRow(`SELECT COUNT(*) FROM profiles WHERE id = ?`, id).Scan(&n)
	if n != 1 {
		t.Errorf("expected exactly one profile row, got %d", n)
	}
}

func TestSetRoleByEmail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	ident, _ := CreateIdentity(ctx, database, NewIdentity{Email: "u@example.com", PasswordHash: "h"})

	ok, err := SetRoleByEmail(ctx, database, "U@example.com", model.RoleAdmin)
	if err != nil {
		t.Fatalf("SetRoleByEmail: %v", err)
	}
	if !ok {
		t.Fatal("expected account to be found")
	}

	p, _ := GetProfile(ctx, database, ident.ID)
	if p.Role != model.RoleAdmin {
		t.Errorf("expected admin, got %q", p.Role)
	}

	ok, err = SetRoleByEmail(ctx, database, "missing@example.com", model.RoleAdmin)
	if err != nil || ok {
		t.Errorf("expected false, nil for unknown email, got %v, %v", ok, err)
	}
}

func TestSetRoleByEmailKeepsLastAdmin(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, _ := CreateIdentity(ctx, database, NewIdentity{Email: "first@example.com", PasswordHash: "h", Role: model.RoleAdmin})
	CreateIdentity(ctx, database, NewIdentity{Email: "second@example.com", PasswordHash: "h"})

	_, err := SetRoleByEmail(ctx, database, "first@example.com", model.RoleUser)
	if !errors.Is(err, model.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
	p, _ := GetProfile(ctx, database, first.ID)
	if p.Role != model.RoleAdmin {
		t.Errorf("expected role to stay admin, got %q", p.Role)
	}

	// Re-asserting admin is not a demotion.
	if ok, err := SetRoleByEmail(ctx, database, "first@example.com", model.RoleAdmin); err != nil || !ok {
		t.Fatalf("SetRoleByEmail admin: %v, %v", ok, err)
	}

	if _, err := SetRoleByEmail(ctx, database, "second@example.com", model.RoleAdmin); err != nil {
		t.Fatalf("promoting second: %v", err)
	}
	ok, err := SetRoleByEmail(ctx, database, "first@example.com", model.RoleEmployee)
	if err != nil || !ok {
		t.Fatalf("demoting with another admin present: %v, %v", ok, err)
	}
	p, _ = GetProfile(ctx, database, first.ID)
	if p.Role != model.RoleEmployee {
		t.Errorf("expected employee, got %q", p.Role)
	}
}

func TestListProfiles(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateIdentity(ctx, database, NewIdentity{Email: "a@example.com", PasswordHash: "h"})
	CreateIdentity(ctx, database, NewIdentity{Email: "b@example.com", PasswordHash: "h", Role: model.RoleAdmin})

	profiles, err := ListProfiles(ctx, database)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[1].Role != model.RoleAdmin {
		t.Errorf("expected second profile to be admin, got %q", profiles[1].Role)
	}
}
