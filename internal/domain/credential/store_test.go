package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func input(service, username string) model.CredentialInput {
	return model.CredentialInput{Service: service, Username: username, Secret: "p"}
}

func seed(t *testing.T, services ...string) *Store {
	t.Helper()
	s := NewStore()
	for i, svc := range services {
		_, err := s.Add(string(rune('a'+i)), input(svc, "user"), []byte("sealed"), t0)
		require.NoError(t, err)
	}
	return s
}

func services(creds []model.Credential) []string {
	out := make([]string, len(creds))
	for i, c := range creds {
		out[i] = c.Service
	}
	return out
}

func TestStore_AddAndFind(t *testing.T) {
	s := NewStore()

	c, err := s.Add("id-1", model.CredentialInput{
		Service:  "  GitHub ",
		Username: "octo",
		Secret:   "hunter2",
		Category: "WORK",
	}, []byte("sealed"), t0)
	require.NoError(t, err)

	assert.Equal(t, "GitHub", c.Service)
	assert.Equal(t, model.CategoryWork, c.Category)
	assert.Equal(t, t0, c.CreatedAt)
	assert.Equal(t, t0, c.UpdatedAt)

	got, err := s.Find("id-1")
	require.NoError(t, err)
	assert.Equal(t, c, got)
	assert.Equal(t, 1, s.Len())
}

func TestStore_AddDefaultsCategory(t *testing.T) {
	s := NewStore()

	c, err := s.Add("id-1", model.CredentialInput{Service: "X", Username: "u", Secret: "p", Category: "crypto"}, []byte("s"), t0)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryOther, c.Category)
}

func TestStore_AddValidation(t *testing.T) {
	tests := []struct {
		name string
		id   string
		in   model.CredentialInput
	}{
		{"blank service", "1", model.CredentialInput{Service: "  ", Username: "u", Secret: "p"}},
		{"blank username", "1", model.CredentialInput{Service: "s", Username: "", Secret: "p"}},
		{"empty secret", "1", model.CredentialInput{Service: "s", Username: "u"}},
		{"empty id", "", model.CredentialInput{Service: "s", Username: "u", Secret: "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			_, err := s.Add(tt.id, tt.in, []byte("sealed"), t0)
			assert.ErrorIs(t, err, model.ErrInvalidCredential)
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestStore_AddDuplicateID(t *testing.T) {
	s := seed(t, "One")

	_, err := s.Add("a", input("Two", "u"), []byte("sealed"), t0)
	assert.ErrorIs(t, err, model.ErrInvalidCredential)
	assert.Equal(t, 1, s.Len())
}

func TestStore_UpdatePreservesCreatedAt(t *testing.T) {
	s := seed(t, "X")

	later := t0.Add(time.Minute)
	c, err := s.Update("a", model.CredentialInput{Service: "Y", Username: "v", Secret: "q"}, []byte("sealed2"), later)
	require.NoError(t, err)

	assert.Equal(t, "a", c.ID)
	assert.Equal(t, "Y", c.Service)
	assert.Equal(t, t0, c.CreatedAt)
	assert.Equal(t, later, c.UpdatedAt)
	assert.Equal(t, []byte("sealed2"), c.Secret)
}

func TestStore_UpdateMovesClockForward(t *testing.T) {
	s := seed(t, "X")

	c, err := s.Update("a", input("X", "u"), []byte("sealed"), t0)
	require.NoError(t, err)
	assert.True(t, c.UpdatedAt.After(c.CreatedAt))

	c, err = s.Update("a", input("X", "u"), []byte("sealed"), t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, c.UpdatedAt.After(t0))
}

func TestStore_UpdateMissing(t *testing.T) {
	s := seed(t, "X")

	_, err := s.Update("zzz", input("Y", "u"), []byte("sealed"), t0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_Remove(t *testing.T) {
	s := seed(t, "A", "B", "C")

	require.NoError(t, s.Remove("b"))
	assert.Equal(t, 2, s.Len())

	_, err := s.Find("b")
	assert.ErrorIs(t, err, model.ErrNotFound)

	c, err := s.Find("c")
	require.NoError(t, err)
	assert.Equal(t, "C", c.Service)

	assert.ErrorIs(t, s.Remove("b"), model.ErrNotFound)
}

func TestStore_CloneIsIndependent(t *testing.T) {
	s := seed(t, "A")
	clone := s.Clone()

	_, err := clone.Add("z", input("Z", "u"), []byte("sealed"), t0)
	require.NoError(t, err)
	require.NoError(t, clone.Remove("a"))

	assert.Equal(t, 1, s.Len())
	_, err = s.Find("a")
	assert.NoError(t, err)
}

func TestStore_FindReturnsCopy(t *testing.T) {
	s := seed(t, "A")

	c, err := s.Find("a")
	require.NoError(t, err)
	c.Secret[0] = 'X'

	again, err := s.Find("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), again.Secret)
}

func TestStore_List_SearchAndSort(t *testing.T) {
	s := NewStore()
	_, err := s.Add("1", input("Gmail", "alice"), []byte("s"), t0)
	require.NoError(t, err)
	_, err = s.Add("2", input("GitHub", "alice@gmail.com"), []byte("s"), t0)
	require.NoError(t, err)
	_, err = s.Add("3", input("Bank", "alice"), []byte("s"), t0)
	require.NoError(t, err)

	got := s.List(model.ListFilter{SearchText: "gm", Category: model.CategoryAll}, language.Und)
	assert.Equal(t, []string{"GitHub", "Gmail"}, services(got))

	got = s.List(model.ListFilter{SearchText: "GM"}, language.Und)
	assert.Equal(t, []string{"GitHub", "Gmail"}, services(got))

	got = s.List(model.ListFilter{}, language.Und)
	assert.Equal(t, []string{"Bank", "GitHub", "Gmail"}, services(got))
}

func TestStore_List_MatchesUsername(t *testing.T) {
	s := NewStore()
	_, err := s.Add("1", input("Mail", "alice@example.com"), []byte("s"), t0)
	require.NoError(t, err)
	_, err = s.Add("2", input("Bank", "bob"), []byte("s"), t0)
	require.NoError(t, err)

	got := s.List(model.ListFilter{SearchText: "ALICE"}, language.Und)
	assert.Equal(t, []string{"Mail"}, services(got))
}

func TestStore_List_UnicodeFolding(t *testing.T) {
	s := seed(t, "ΣΕΛΗΝΗ", "Почта")

	got := s.List(model.ListFilter{SearchText: "σελήνη"}, language.Und)
	assert.Empty(t, got)

	got = s.List(model.ListFilter{SearchText: "σεληνη"}, language.Und)
	assert.Equal(t, []string{"ΣΕΛΗΝΗ"}, services(got))

	got = s.List(model.ListFilter{SearchText: "почта"}, language.Und)
	assert.Equal(t, []string{"Почта"}, services(got))
}

func TestStore_List_CategoryFilter(t *testing.T) {
	s := NewStore()
	_, err := s.Add("1", model.CredentialInput{Service: "Steam", Username: "u", Secret: "p", Category: "games"}, []byte("s"), t0)
	require.NoError(t, err)
	_, err = s.Add("2", model.CredentialInput{Service: "Chase", Username: "u", Secret: "p", Category: "bank"}, []byte("s"), t0)
	require.NoError(t, err)

	got := s.List(model.ListFilter{Category: "games"}, language.Und)
	assert.Equal(t, []string{"Steam"}, services(got))

	got = s.List(model.ListFilter{Category: "email"}, language.Und)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_List_LocaleCollation(t *testing.T) {
	s := seed(t, "Zebra", "Äpfel", "Apple")

	got := s.List(model.ListFilter{}, language.German)
	assert.Equal(t, []string{"Äpfel", "Apple", "Zebra"}, services(got))
}

func TestStore_List_TiesBrokenByID(t *testing.T) {
	s := seed(t, "Same", "Same", "Same")

	got := s.List(model.ListFilter{}, language.Und)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestStore_CountByCategory(t *testing.T) {
	s := NewStore()
	_, err := s.Add("1", model.CredentialInput{Service: "A", Username: "u", Secret: "p", Category: "work"}, []byte("s"), t0)
	require.NoError(t, err)
	_, err = s.Add("2", model.CredentialInput{Service: "B", Username: "u", Secret: "p", Category: "work"}, []byte("s"), t0)
	require.NoError(t, err)

	counts := s.CountByCategory()
	assert.Equal(t, 2, counts[model.CategoryWork])
	assert.Equal(t, 0, counts[model.CategoryBank])
	assert.Len(t, counts, 6)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	valid := model.Credential{ID: "1", Service: "s", Username: "u", Secret: []byte("x"), Category: model.CategoryOther}

	_, err := Load([]model.Credential{valid, valid})
	assert.ErrorIs(t, err, model.ErrInvalidCredential)

	bad := valid
	bad.Category = "crypto"
	_, err = Load([]model.Credential{bad})
	assert.ErrorIs(t, err, model.ErrInvalidCredential)

	s, err := Load([]model.Credential{valid})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestStore_Put(t *testing.T) {
	s := seed(t, "A")

	added, err := s.Put(model.Credential{ID: "a", Service: "A2", Username: "u", Secret: []byte("x"), Category: model.CategoryWork})
	require.NoError(t, err)
	assert.False(t, added)

	added, err = s.Put(model.Credential{ID: "new", Service: "N", Username: "u", Secret: []byte("x"), Category: model.CategoryOther})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 2, s.Len())

	c, err := s.Find("a")
	require.NoError(t, err)
	assert.Equal(t, "A2", c.Service)
}
