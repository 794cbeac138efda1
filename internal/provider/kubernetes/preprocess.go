package kubernetes

import "github.com/skylinehq/skyline/internal/domain"

// LocationAliasPreProcessor rewrites the legacy "location" field into
// "namespace" on kubernetes descriptions. Older clients still submit the
// provider-neutral field name.
type LocationAliasPreProcessor struct{}

func (LocationAliasPreProcessor) Process(desc domain.Description) (domain.Description, error) {
	if desc.Provider() != Provider {
		return desc, nil
	}
	location, ok := desc.StringField("location")
	if !ok {
		return desc, nil
	}
	if _, has := desc.StringField("namespace"); has {
		return desc, nil
	}
	out := make(domain.Description, len(desc))
	for k, v := range desc {
		out[k] = v
	}
	out["namespace"] = location
	delete(out, "location")
	return out, nil
}
