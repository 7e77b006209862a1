package email

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/textproto"
	"regexp"
	"strconv"
	"syscall"

	"github.com/wneessen/go-mail"
)

// Normalized error codes set by DescribeError.
const (
	CodeDNS           = "EDNS"
	CodeConnRefused   = "ECONNREFUSED"
	CodeConnReset     = "ECONNRESET"
	CodeTimeout       = "ETIMEDOUT"
	CodeTLS           = "ETLS"
	CodeNotConfigured = "ENOTCONFIGURED"
	CodeInvalidAddr   = "EINVALIDADDR"
)

// Transports that produced a Status.
const (
	TransportSMTP = "smtp"
	TransportHTTP = "http"
)

// ErrorDescription is a transport-independent view of a delivery error.
// Status is an SMTP reply code when Transport is TransportSMTP and an HTTP
// status when it is TransportHTTP.
type ErrorDescription struct {
	Code      string
	Status    int
	Enhanced  string // SMTP enhanced status code, e.g. 5.1.1
	Transport string
	Message   string
	Response  string
}

// smtpReply matches a reply code at the start of an SMTP response line,
// optionally followed by an enhanced status code.
var smtpReply = regexp.MustCompile(`(?:^|[\s:])([245][0-9]{2})[ -](?:[245]\.[0-9]{1,3}\.[0-9]{1,3}\b|[A-Za-z<])`)

// DescribeError flattens an error returned by a Sender.
func DescribeError(err error) ErrorDescription {
	if err == nil {
		return ErrorDescription{}
	}

	d := ErrorDescription{Message: err.Error()}

	var (
		dnsErr     *net.DNSError
		protoErr   *textproto.Error
		transErr   *TransportError
		sendErr    *mail.SendError
		emailErr   *EmailError
		recordErr  tls.RecordHeaderError
		verifyErr  *tls.CertificateVerificationError
		authErr    x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		netErr     net.Error
	)

	switch {
	case errors.As(err, &dnsErr):
		d.Code = CodeDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		d.Code = CodeConnRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		d.Code = CodeConnReset
	case errors.As(err, &recordErr), errors.As(err, &verifyErr),
		errors.As(err, &authErr), errors.As(err, &hostErr), errors.As(err, &invalidErr):
		d.Code = CodeTLS
	case errors.Is(err, context.DeadlineExceeded):
		d.Code = CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		d.Code = CodeTimeout
	case errors.As(err, &emailErr) && emailErr.Code == codeNotInitialized:
		d.Code = CodeNotConfigured
	case errors.As(err, &emailErr) && emailErr.Code == codeInvalid:
		d.Code = CodeInvalidAddr
	}

	switch {
	case errors.As(err, &protoErr):
		d.Transport = TransportSMTP
		d.Status = protoErr.Code
		d.Response = protoErr.Msg
	case errors.As(err, &sendErr):
		// SendError keeps the server reply code but does not unwrap to it.
		d.Transport = TransportSMTP
		d.Status = sendErr.ErrorCode()
		d.Enhanced = sendErr.EnhancedStatusCode()
		if d.Status == 0 {
			d.Status = replyCode(d.Message)
		}
	case errors.As(err, &transErr):
		d.Transport = TransportHTTP
		d.Status = transErr.StatusCode
		d.Response = transErr.Response
		if transErr.Code != 0 {
			d.Code = "POSTMARK_" + strconv.Itoa(transErr.Code)
		}
	default:
		if code := replyCode(d.Message); code != 0 {
			d.Transport = TransportSMTP
			d.Status = code
		}
	}

	return d
}

func replyCode(msg string) int {
	m := smtpReply.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}
