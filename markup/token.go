package markup

// Kind identifies the construct a Token was scanned from.
type Kind int

const (
	KindText Kind = iota
	KindPre
	KindCode
	KindBold
	KindBullet
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPre:
		return "pre"
	case KindCode:
		return "code"
	case KindBold:
		return "bold"
	case KindBullet:
		return "bullet"
	default:
		return "unknown"
	}
}

// Token is one scanned construct.
// Text holds literal text for KindText and the verbatim inner content for
// KindPre and KindCode. Bold tokens carry their inline content in Children.
type Token struct {
	Kind     Kind
	Text     string
	Children []Token
}
