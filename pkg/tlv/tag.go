package tlv

// TagControl is the upper 3 bits of a control octet.
type TagControl uint8

const (
	TagControlAnonymous        TagControl = 0
	TagControlContext          TagControl = 1
	TagControlCommonProfile2   TagControl = 2
	TagControlCommonProfile4   TagControl = 3
	TagControlImplicitProfile2 TagControl = 4
	TagControlImplicitProfile4 TagControl = 5
	TagControlFullyQualified6  TagControl = 6
	TagControlFullyQualified8  TagControl = 7
)

var tagControlSizes = [...]int{0, 1, 2, 4, 2, 4, 6, 8}

// Size returns the number of tag bytes following the control octet.
func (tc TagControl) Size() int {
	return tagControlSizes[tc&0x07]
}

// Tag is a TLV element tag. The writer emits anonymous and context tags
// only; the reader accepts every form and keeps the tag number.
type Tag struct {
	control TagControl
	number  uint32
}

// Anonymous returns the anonymous tag.
func Anonymous() Tag {
	return Tag{control: TagControlAnonymous}
}

// ContextTag returns a context-specific tag.
func ContextTag(n uint8) Tag {
	return Tag{control: TagControlContext, number: uint32(n)}
}

func (t Tag) Control() TagControl { return t.control }
func (t Tag) IsAnonymous() bool   { return t.control == TagControlAnonymous }
func (t Tag) IsContext() bool     { return t.control == TagControlContext }
func (t Tag) TagNumber() uint32   { return t.number }

// Is reports whether t is the context tag n.
func (t Tag) Is(n uint8) bool {
	return t.control == TagControlContext && t.number == uint32(n)
}
