package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/parisxmas/kobodash/internal/models"
)

const assetJSON = `{"uid":"aCli","name":"Market Survey","version_id":"v1","content":{"survey":[
	{"type":"select_one towns","name":"town","label":["Town"]}],
	"choices":[{"list_name":"towns","name":"t1","label":["Herat"]}]}}`

const dataJSON = `{"count":2,"next":null,"results":[
	{"_id":10,"town":"t1","_submission_time":"2024-03-01T08:00:00"},
	{"_id":11,"town":"t1","_submission_time":"2024-03-02T08:00:00"}]}`

func setup(t *testing.T) {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/assets/aCli/"):
			w.Write([]byte(assetJSON))
		case strings.HasSuffix(r.URL.Path, "/assets/aCli/data/"):
			w.Write([]byte(dataJSON))
		case strings.HasSuffix(r.URL.Path, "/assets/"):
			w.Write([]byte(`{"count":2,"next":null,"results":[
				{"uid":"aCli","name":"Market Survey","deployment__active":true,"deployment__submission_count":2},
				{"uid":"aOther","name":"Draft","deployment__active":false}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	t.Setenv("KOBODASH_CONFIG", "")
	t.Setenv("KOBODASH_DB", filepath.Join(t.TempDir(), "kobodash.db"))
	t.Setenv("KOBO_API_URL", upstream.URL+"/api/v2")
	t.Setenv("KOBO_API_TOKEN", "token")
	t.Setenv("KOBODASH_LOG_LEVEL", "error")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath, syncFull, syncAll = "", false, false
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRegisterSyncAndList(t *testing.T) {
	setup(t)

	out, err := run(t, "", "forms", "register", "aCli")
	require.NoError(t, err)
	var form models.Form
	require.NoError(t, json.Unmarshal([]byte(out), &form))
	assert.Equal(t, "market-survey", form.Slug)

	out, err = run(t, "", "sync", "market-survey")
	require.NoError(t, err)
	var logs []models.SyncLog
	require.NoError(t, json.Unmarshal([]byte(out), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncSuccess, logs[0].Status)
	assert.Equal(t, 2, logs[0].RecordsAdded)

	out, err = run(t, "", "forms", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "aCli")
	assert.Contains(t, out, "market-survey")
	assert.NotContains(t, out, "never")

	out, err = run(t, "", "schema", "aCli")
	require.NoError(t, err)
	assert.Contains(t, out, `"path": "town"`)
}

func TestFormsDiscover(t *testing.T) {
	setup(t)
	_, err := run(t, "", "forms", "register", "aCli")
	require.NoError(t, err)

	out, err := run(t, "", "forms", "discover")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "aCli")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[1]), "true"))
	assert.Contains(t, lines[2], "aOther")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[2]), "false"))
}

func TestSync_Arguments(t *testing.T) {
	setup(t)

	_, err := run(t, "", "sync")
	assert.Error(t, err)

	_, err = run(t, "", "sync", "aCli", "--all")
	assert.Error(t, err)

	_, err = run(t, "", "sync", "unknown")
	assert.Error(t, err)
}

func TestHashSecret(t *testing.T) {
	out, err := run(t, "s3cret\n", "hash-secret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	_, err = run(t, "\n", "hash-secret")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	setup(t)
	t.Setenv("KOBO_API_URL", "not a url")
	_, err := run(t, "", "forms", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kobo_url")
}
