package cache

// ListID is the tag id that stands for a collection as a whole rather than
// one of its members.
const ListID = "LIST"

// Tag names something a cached query result depends on, e.g. ("Posts", "7")
// for one post or ("Posts", "LIST") for the post collection.
type Tag struct {
	Type string `json:"type" yaml:"type" msgpack:"type"`
	ID   string `json:"id" yaml:"id" msgpack:"id"`
}

// ListTag returns the collection tag for typ.
func ListTag(typ string) Tag {
	return Tag{Type: typ, ID: ListID}
}

// EntityTag returns the tag for a single entity of typ.
func EntityTag(typ, id string) Tag {
	return Tag{Type: typ, ID: id}
}

func (t Tag) String() string {
	return t.Type + ":" + t.ID
}

// DedupeTags drops repeated tags and zero values, keeping first-seen order.
func DedupeTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[Tag]struct{}, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, tag := range tags {
		if tag == (Tag{}) {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
