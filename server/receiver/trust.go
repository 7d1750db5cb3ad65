package receiver

// TrustInput holds the signature facts of one message.
// LDSigner is empty when the document is unsigned or its signature failed.
type TrustInput struct {
	HTTPSigner string
	LDSigned   bool
	LDSigner   string
	Actor      string
}

// EvaluateTrust decides whether the claimed actor is authentic.
// A valid document signature is enough on its own, otherwise
// the actor has to be the one who signed the http request.
func EvaluateTrust(in TrustInput) (bool, string) {
	switch {
	case in.HTTPSigner == "":
		return false, "no http signer"
	case in.LDSigned && in.LDSigner != "" && in.LDSigner == in.Actor && in.Actor == in.HTTPSigner:
		return true, "http and ld signatures belong to " + in.LDSigner
	case in.LDSigned && in.LDSigner != "":
		return true, "ld signature is signed by " + in.LDSigner
	case in.LDSigned && in.Actor == in.HTTPSigner:
		return true, "bad ld signature, but the http signer fits the actor"
	case in.LDSigned:
		return false, "bad ld signature and the http signer is different"
	case in.Actor == in.HTTPSigner:
		return true, "no ld signature, the actor fits the http signer"
	default:
		return false, "no ld signature, different actor"
	}
}
