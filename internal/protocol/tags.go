package protocol

// Tag identifies the type of a frame.
type Tag uint8

const (
	TagUnknown Tag = iota
	TagPing
	TagPong
	TagPrivMsg
	TagErr
	TagBroadcast
	TagMute
	TagUnmute
	TagBan
	TagUnban
	TagSubOnly
	TagNames
	TagMsg
	TagJoin
	TagQuit
)

var tagNames = [...]string{
	TagUnknown:   "UNKNOWN",
	TagPing:      "PING",
	TagPong:      "PONG",
	TagPrivMsg:   "PRIVMSG",
	TagErr:       "ERR",
	TagBroadcast: "BROADCAST",
	TagMute:      "MUTE",
	TagUnmute:    "UNMUTE",
	TagBan:       "BAN",
	TagUnban:     "UNBAN",
	TagSubOnly:   "SUBONLY",
	TagNames:     "NAMES",
	TagMsg:       "MSG",
	TagJoin:      "JOIN",
	TagQuit:      "QUIT",
}

var tagsByName = func() map[string]Tag {
	m := make(map[string]Tag, len(tagNames)-1)
	for t := TagPing; int(t) < len(tagNames); t++ {
		m[tagNames[t]] = t
	}
	return m
}()

// ParseTag looks up a wire name. Matching is exact and case-sensitive.
func ParseTag(name string) (Tag, bool) {
	t, ok := tagsByName[name]
	return t, ok
}

// Tags returns every recognized tag in declaration order.
func Tags() []Tag {
	tags := make([]Tag, 0, len(tagNames)-1)
	for t := TagPing; int(t) < len(tagNames); t++ {
		tags = append(tags, t)
	}
	return tags
}

// String returns the wire name of the tag.
func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return tagNames[TagUnknown]
}

// Valid reports whether t belongs to the recognized set.
func (t Tag) Valid() bool {
	return t > TagUnknown && int(t) < len(tagNames)
}

// IsNotification reports whether frames with this tag are pure server
// notifications that the session forwards untouched.
func (t Tag) IsNotification() bool {
	switch t {
	case TagBroadcast, TagMute, TagUnmute, TagBan, TagUnban,
		TagSubOnly, TagNames, TagJoin, TagQuit:
		return true
	}
	return false
}
