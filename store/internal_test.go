package store

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/twine/model"
)

// --- Record conversion Tests ---

func TestToCredential_IgnoresManagedAttributes(t *testing.T) {
	c, err := toCredential(map[string]types.AttributeValue{
		"id":         &types.AttributeValueMemberS{Value: "c1"},
		"password":   &types.AttributeValueMemberS{Value: "asd"},
		"version":    &types.AttributeValueMemberN{Value: "2"},
		"entity_ref": &types.AttributeValueMemberS{Value: "credential#c1"},
		"ttl":        &types.AttributeValueMemberN{Value: "0"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := model.Credential{ID: "c1", Password: "asd", Version: 2}
	if *c != want {
		t.Errorf("expected %+v, got %+v", want, *c)
	}
}

// --- TTL Tests ---

func TestIsDeletedAt(t *testing.T) {
	now := time.Unix(1000, 0)
	tests := []struct {
		name string
		item map[string]types.AttributeValue
		want bool
	}{
		{"no ttl", map[string]types.AttributeValue{}, false},
		{"past ttl", map[string]types.AttributeValue{"ttl": &types.AttributeValueMemberN{Value: "999"}}, true},
		{"ttl equal to now", map[string]types.AttributeValue{"ttl": &types.AttributeValueMemberN{Value: "1000"}}, true},
		{"future ttl", map[string]types.AttributeValue{"ttl": &types.AttributeValueMemberN{Value: "1001"}}, false},
		{"string ttl", map[string]types.AttributeValue{"ttl": &types.AttributeValueMemberS{Value: "1"}}, false},
		{"garbage ttl", map[string]types.AttributeValue{"ttl": &types.AttributeValueMemberN{Value: "x"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDeletedAt(tt.item, now); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMergeExprValues(t *testing.T) {
	merged := mergeExprValues(
		ttlValuesAt(time.Unix(42, 0)),
		map[string]types.AttributeValue{":one": &types.AttributeValueMemberN{Value: "1"}},
	)
	if len(merged) != 2 {
		t.Fatalf("expected 2 values, got %d", len(merged))
	}
	if v := merged[":now"].(*types.AttributeValueMemberN); v.Value != "42" {
		t.Errorf("expected :now 42, got %s", v.Value)
	}
}

// --- Entity Tests ---

func TestCredentialEntity_SharesParentKey(t *testing.T) {
	e := credentialEntity{table: "creds", parentTable: "custs", id: "c1"}

	check := e.ParentCheck()
	if check.TableName != "custs" {
		t.Errorf("expected parent table 'custs', got %q", check.TableName)
	}
	if v := check.Key["id"].(*types.AttributeValueMemberS); v.Value != "c1" {
		t.Errorf("expected parent key c1, got %s", v.Value)
	}
	if e.ParentRef() != "customer#c1" {
		t.Errorf("expected ParentRef 'customer#c1', got %q", e.ParentRef())
	}
}

func TestParseEntityRef(t *testing.T) {
	tests := []struct {
		ref      string
		wantType string
		wantID   string
		wantOK   bool
	}{
		{"customer#c1", "customer", "c1", true},
		{"credential#a#b", "credential", "a#b", true},
		{"customer#", "", "", false},
		{"#c1", "", "", false},
		{"customer", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		gotType, gotID, ok := ParseEntityRef(tt.ref)
		if gotType != tt.wantType || gotID != tt.wantID || ok != tt.wantOK {
			t.Errorf("ParseEntityRef(%q) = %q, %q, %v", tt.ref, gotType, gotID, ok)
		}
	}
}

// --- Config Tests ---

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.validate()

	if cfg != DefaultConfig() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestConfigValidate_PreservesCustomTableNames(t *testing.T) {
	cfg := Config{CustomerTable: "custs", CredentialTable: "creds"}
	cfg.validate()

	if cfg.CustomerTable != "custs" || cfg.CredentialTable != "creds" {
		t.Errorf("custom table names overwritten: %+v", cfg)
	}
}

func TestIsManaged(t *testing.T) {
	for _, k := range []string{"id", "entity_ref", "parent_ref", "version", "created_at", "updated_at", "ttl"} {
		if !isManaged(k) {
			t.Errorf("expected %q to be managed", k)
		}
	}
	for _, k := range []string{"name", "password"} {
		if isManaged(k) {
			t.Errorf("expected %q to be unmanaged", k)
		}
	}
}
