package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
auth:
  jwt_secret: test-secret
database:
  host: localhost
  name: faceauth
  user: faceauth
  password: faceauth
`

func Test_Load_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "faceauth", cfg.Auth.Issuer)
	assert.Equal(t, 512, cfg.Vision.EmbeddingDim)
	assert.Equal(t, 0.25, cfg.Match.VerificationThreshold)
	assert.Equal(t, 0.20, cfg.Match.DuplicateThreshold)
	assert.Equal(t, 2, cfg.Liveness.ClosedFrames)
	assert.Equal(t, 15*time.Second, cfg.Liveness.Deadline)
	assert.Equal(t, 30*time.Second, cfg.Verify.Timeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func Test_Load_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func Test_Load_EnvOverrides(t *testing.T) {
	t.Setenv("FACEAUTH_SERVER_PORT", "9090")
	t.Setenv("FACEAUTH_DB_HOST", "db.internal")
	t.Setenv("FACEAUTH_JWT_SECRET", "env-secret")
	t.Setenv("FACEAUTH_LIVENESS_ENABLED", "false")

	cfg, err := Load(writeConfig(t, minimalConfig+`
liveness:
  enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.False(t, cfg.Liveness.Enabled)
}

func Test_Validate_MissingJWTSecret(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  host: localhost
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func Test_Validate_ThresholdRange(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
match:
  verification_threshold: 1.5
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verification_threshold")
}

func Test_Validate_DuplicateLooserThanVerification(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
match:
  verification_threshold: 0.25
  duplicate_threshold: 0.40
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate_threshold")
}

func Test_Validate_LivenessHysteresis(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
liveness:
  enabled: true
  closed_threshold: 0.30
  open_threshold: 0.20
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open_threshold")
}

func Test_Validate_VerifyTimeoutCoversLivenessDeadline(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
liveness:
  enabled: true
  deadline: 60s
verify:
  timeout: 30s
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify.timeout")
}

func Test_DatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "faceauth", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/faceauth?sslmode=disable", d.DSN())
}
