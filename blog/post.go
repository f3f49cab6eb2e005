package blog

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Post is a blog post as the backend serves it.
type Post struct {
	ID            string `json:"id" msgpack:"id"`
	Title         string `json:"title" msgpack:"title"`
	Description   string `json:"description" msgpack:"description"`
	FeaturedImage string `json:"featuredImage" msgpack:"featuredImage"`
	PublishDate   string `json:"publishDate" msgpack:"publishDate"`
	Published     bool   `json:"published" msgpack:"published"`
}

// PostInput is the body of a create request: a Post without its id.
type PostInput struct {
	Title         string `json:"title" msgpack:"title"`
	Description   string `json:"description" msgpack:"description"`
	FeaturedImage string `json:"featuredImage" msgpack:"featuredImage"`
	PublishDate   string `json:"publishDate" msgpack:"publishDate"`
	Published     bool   `json:"published" msgpack:"published"`
}

// Input strips the id from p.
func (p Post) Input() PostInput {
	return PostInput{
		Title:         p.Title,
		Description:   p.Description,
		FeaturedImage: p.FeaturedImage,
		PublishDate:   p.PublishDate,
		Published:     p.Published,
	}
}

// WithID attaches id to in.
func (in PostInput) WithID(id string) Post {
	return Post{
		ID:            id,
		Title:         in.Title,
		Description:   in.Description,
		FeaturedImage: in.FeaturedImage,
		PublishDate:   in.PublishDate,
		Published:     in.Published,
	}
}

// publishDateLayouts are the accepted formats: ISO-8601 and the value of an
// HTML datetime-local input.
var publishDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var errPublishDate = validation.NewError("validation_publish_date", "must be an ISO-8601 date")

func validPublishDate(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	for _, layout := range publishDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return nil
		}
	}
	return errPublishDate
}

// Validate checks the fields the backend requires. Errors are keyed by the
// json field name.
func (in PostInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Description, validation.Required),
		validation.Field(&in.FeaturedImage, validation.Required),
		validation.Field(&in.PublishDate, validation.Required, validation.By(validPublishDate)),
	)
}

// FieldErrors flattens a validation error into field → message. Errors that
// are not per-field validation failures yield nil.
func FieldErrors(err error) map[string]string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for field, ferr := range verrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}
	return out
}
