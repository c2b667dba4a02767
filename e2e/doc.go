package e2e

// e2e contains integration tests that go from a YAML config file to a
// message received by an in-process SMTP server, the way the command line
// tool wires things together. Test dependencies shared with unit tests live
// in smtptest. (These were intended to be end-to-end tests but became
// integration tests instead, hence the name.)
