package email

import (
	"regexp"
	"slices"
)

// Failure categories.
const (
	CategoryDNS     = "DNS"
	CategoryConn    = "PORT/CONN"
	CategoryTLS     = "TLS/SSL"
	CategoryAuth    = "AUTH"
	CategorySMTP5xx = "SMTP-5xx"
	CategoryReject  = "REJECTED"
	CategoryUnknown = "UNKNOWN"
)

// Classification is the verdict for one failed delivery.
type Classification struct {
	Category  string
	Permanent bool
}

// Rule maps a matching error description to a classification.
// Permanent, when set, overrides Classification.Permanent.
type Rule struct {
	Category  string
	Match     func(ErrorDescription) bool
	Permanent func(ErrorDescription) bool
}

var (
	dnsText       = regexp.MustCompile(`(?i)no such host|getaddrinfo|server misbehaving|\bdns\b|EAI_AGAIN|ENOTFOUND`)
	connText      = regexp.MustCompile(`(?i)connection refused|connection reset|broken pipe|i/o timeout|timed out|network is unreachable|no route to host|ECONNREFUSED|ECONNRESET|ETIMEDOUT|ESOCKET`)
	tlsText       = regexp.MustCompile(`(?i)\btls\b|\bssl\b|x509|certificate|handshake failure|starttls`)
	authText      = regexp.MustCompile(`(?i)auth(entication)? (failed|required|unsuccessful)|invalid (login|credentials)|username and password not accepted|bad credentials|\bEAUTH\b|server token`)
	rejectionText = regexp.MustCompile(`(?i)mailbox|user unknown|unknown user|no such user|(invalid|unknown) recipient|recipient (address )?(rejected|not found)|address rejected|does not exist|invalid address|policy|blocked|blacklist|spam|relay(ing)? (access )?denied|not permitted|\b5\.1\.[0-9]+\b|\b5\.7\.[0-9]+\b`)
)

func codeIs(codes ...string) func(ErrorDescription) bool {
	return func(d ErrorDescription) bool { return slices.Contains(codes, d.Code) }
}

func statusIn(codes ...int) func(ErrorDescription) bool {
	return func(d ErrorDescription) bool { return slices.Contains(codes, d.Status) }
}

func transportIs(t string) func(ErrorDescription) bool {
	return func(d ErrorDescription) bool { return d.Transport == t }
}

func allOf(preds ...func(ErrorDescription) bool) func(ErrorDescription) bool {
	return func(d ErrorDescription) bool {
		for _, p := range preds {
			if !p(d) {
				return false
			}
		}
		return true
	}
}

func statusBetween(lo, hi int) func(ErrorDescription) bool {
	return func(d ErrorDescription) bool { return d.Status >= lo && d.Status <= hi }
}

// enhancedRejection matches 5.1.x (addressing) and 5.7.x (policy) codes.
func enhancedRejection(d ErrorDescription) bool {
	return len(d.Enhanced) > 2 && (d.Enhanced[:3] == "5.1" || d.Enhanced[:3] == "5.7")
}

func textMatches(re *regexp.Regexp) func(ErrorDescription) bool {
	return func(d ErrorDescription) bool { return re.MatchString(d.Message) || re.MatchString(d.Response) }
}

func anyOf(preds ...func(ErrorDescription) bool) func(ErrorDescription) bool {
	return func(d ErrorDescription) bool {
		for _, p := range preds {
			if p(d) {
				return true
			}
		}
		return false
	}
}

func always(ErrorDescription) bool { return true }

// Rules is the ordered classification table. The first match wins.
var Rules = []Rule{
	{
		Category: CategoryDNS,
		Match:    anyOf(codeIs(CodeDNS), textMatches(dnsText)),
	},
	{
		Category: CategoryAuth,
		Match: anyOf(
			codeIs(CodeNotConfigured),
			allOf(transportIs(TransportSMTP), statusIn(530, 534, 535)),
			allOf(transportIs(TransportHTTP), statusIn(401, 403)),
			textMatches(authText),
		),
		Permanent: always,
	},
	{
		// Addresses that fail to parse locally, and HTTP providers refusing
		// the recipient (Postmark 300 invalid request, 406 inactive recipient).
		Category: CategoryReject,
		Match: anyOf(
			codeIs(CodeInvalidAddr),
			allOf(transportIs(TransportHTTP), statusBetween(400, 499), anyOf(
				codeIs("POSTMARK_300", "POSTMARK_406"),
				textMatches(rejectionText),
			)),
		),
		Permanent: always,
	},
	{
		Category: CategoryConn,
		Match:    anyOf(codeIs(CodeConnRefused, CodeConnReset, CodeTimeout), textMatches(connText)),
	},
	{
		Category: CategoryTLS,
		Match:    anyOf(codeIs(CodeTLS), textMatches(tlsText)),
	},
	{
		Category:  CategorySMTP5xx,
		Match:     allOf(transportIs(TransportSMTP), statusBetween(500, 599)),
		Permanent: anyOf(enhancedRejection, textMatches(rejectionText)),
	},
}

// Classify buckets an error description using Rules. Unmatched errors are
// UNKNOWN and transient.
func Classify(d ErrorDescription) Classification {
	return ClassifyWith(Rules, d)
}

// ClassifyWith evaluates a custom rule table.
func ClassifyWith(rules []Rule, d ErrorDescription) Classification {
	for _, r := range rules {
		if r.Match == nil || !r.Match(d) {
			continue
		}
		c := Classification{Category: r.Category}
		if r.Permanent != nil {
			c.Permanent = r.Permanent(d)
		}
		return c
	}
	return Classification{Category: CategoryUnknown}
}
