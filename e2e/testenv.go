package e2e

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ShellRechargeSolutionsEU/mailer/smtptest"
)

// testEnvironment manages all dependencies required to simulate a "real"
// environment and run the e2e tests. Callers should create this via
// startTestEnvironment.
type testEnvironment struct {
	SMTPServer *smtptest.InProcessServer
	// trusts the server's self-signed cert
	ClientTLS   *tls.Config
	tempDirPath string
}

// startTestEnvironment starts an SMTP server that offers STARTTLS and
// requires AUTH. Everything is torn down when the test ends.
func startTestEnvironment(t *testing.T) (*testEnvironment, error) {
	te := &testEnvironment{
		tempDirPath: t.TempDir(),
	}

	key, cert, err := smtptest.GenerateTLSFiles(t)
	if err != nil {
		return nil, fmt.Errorf("could not generate TLS files: %w", err)
	}

	te.ClientTLS, err = smtptest.ClientTLSConfig(cert)
	if err != nil {
		return nil, err
	}

	ts, err := smtptest.NewInProcessServer(smtptest.Options{
		KeyPath:     key,
		CertPath:    cert,
		RequireAuth: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not start the SMTP server: %w", err)
	}
	te.SMTPServer = ts
	t.Cleanup(ts.Close)

	go ts.Start()

	return te, nil
}

// configPath returns where the app config for this environment goes.
func (te *testEnvironment) configPath() string {
	return filepath.Join(te.tempDirPath, "config.yaml")
}

// storageDir returns a directory for the journal.
func (te *testEnvironment) storageDir() string {
	return filepath.Join(te.tempDirPath, "journal")
}
