package webhooks

import (
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	maxURLLength         = 2048
	maxEventNameLength   = 128
	maxDescriptionLength = 1024
)

func validateURL(raw string) (string, *goerrors.FieldError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &goerrors.FieldError{Field: "url", Message: "is required"}
	}
	if len(raw) > maxURLLength {
		return "", &goerrors.FieldError{Field: "url", Message: "is too long"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &goerrors.FieldError{Field: "url", Message: "must be a valid URL", Value: raw}
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &goerrors.FieldError{Field: "url", Message: "must be an absolute http or https URL", Value: raw}
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", &goerrors.FieldError{Field: "url", Message: "must include a host", Value: raw}
	}
	if u.User != nil {
		return "", &goerrors.FieldError{Field: "url", Message: "must not embed credentials"}
	}
	return u.String(), nil
}

// normalizeEvents trims, de-duplicates and preserves first-seen order.
func normalizeEvents(events []string) ([]string, *goerrors.FieldError) {
	if len(events) == 0 {
		return nil, &goerrors.FieldError{Field: "events", Message: "must contain at least one event"}
	}
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e == "" {
			return nil, &goerrors.FieldError{Field: "events", Message: "event names cannot be empty"}
		}
		if len(e) > maxEventNameLength {
			return nil, &goerrors.FieldError{Field: "events", Message: "event name is too long", Value: e}
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func validateDescription(d string) (string, *goerrors.FieldError) {
	d = strings.TrimSpace(d)
	if len(d) > maxDescriptionLength {
		return "", &goerrors.FieldError{Field: "description", Message: "is too long"}
	}
	return d, nil
}

// ValidateEventName checks a name passed to dispatch.
func ValidateEventName(event string) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return Validation(goerrors.FieldError{Field: "event", Message: "is required"})
	}
	if len(event) > maxEventNameLength {
		return Validation(goerrors.FieldError{Field: "event", Message: "is too long"})
	}
	return nil
}

func (in CreateInput) normalize() (CreateInput, error) {
	var fields []goerrors.FieldError

	u, ferr := validateURL(in.URL)
	if ferr != nil {
		fields = append(fields, *ferr)
	}
	events, ferr := normalizeEvents(in.Events)
	if ferr != nil {
		fields = append(fields, *ferr)
	}
	desc, ferr := validateDescription(in.Description)
	if ferr != nil {
		fields = append(fields, *ferr)
	}

	if len(fields) > 0 {
		return CreateInput{}, Validation(fields...)
	}
	return CreateInput{URL: u, Events: events, Description: desc}, nil
}

func (in UpdateInput) normalize() (UpdateInput, error) {
	if in.Empty() {
		return UpdateInput{}, BadInput("update body must contain at least one field")
	}

	var fields []goerrors.FieldError
	out := UpdateInput{IsActive: in.IsActive}

	if in.URL != nil {
		u, ferr := validateURL(*in.URL)
		if ferr != nil {
			fields = append(fields, *ferr)
		}
		out.URL = &u
	}
	if in.Events != nil {
		events, ferr := normalizeEvents(*in.Events)
		if ferr != nil {
			fields = append(fields, *ferr)
		}
		out.Events = &events
	}
	if in.Description != nil {
		d, ferr := validateDescription(*in.Description)
		if ferr != nil {
			fields = append(fields, *ferr)
		}
		out.Description = &d
	}

	if len(fields) > 0 {
		return UpdateInput{}, Validation(fields...)
	}
	return out, nil
}
