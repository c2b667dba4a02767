package email

// email is responsible for turning a list of typed message parts into a
// MIME-formatted message and handing it to a transport, usually an SMTP
// relay. MIME encoding and the SMTP conversation itself (TLS negotiation,
// AUTH) are left to github.com/wneessen/go-mail. Callers get back either nil
// or a single *SendError, whatever went wrong.
