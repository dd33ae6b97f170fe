package stream

import "encoding/json"

// fileEnvelope is the shape tool-call arguments take for create/update
// metrics and dashboards: a list of files, each carrying a name and the
// streamed yml_content for the artifact body.
type fileEnvelope struct {
	Files []fileEntry `json:"files"`
}

type fileEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	YMLContent string `json:"yml_content"`
}

// MetricProcessor streams the yml_content of a create_metrics/update_metrics
// call's first file as it arrives.
type MetricProcessor struct{}

func (MetricProcessor) ProcessorType() string { return "metric" }

func (MetricProcessor) CanProcess(partialJSON string) bool {
	return looksLikeFileEnvelope(partialJSON)
}

func (MetricProcessor) Process(id string, partialJSON string, previous *Output) (*Output, error) {
	return processFileEnvelope(partialJSON, previous)
}

// DashboardProcessor streams the yml_content of a
// create_dashboards/update_dashboards call's first file as it arrives.
type DashboardProcessor struct{}

func (DashboardProcessor) ProcessorType() string { return "dashboard" }

func (DashboardProcessor) CanProcess(partialJSON string) bool {
	return looksLikeFileEnvelope(partialJSON)
}

func (DashboardProcessor) Process(id string, partialJSON string, previous *Output) (*Output, error) {
	return processFileEnvelope(partialJSON, previous)
}

// TextProcessor handles tools whose arguments are a single free-text field
// (plan, clarifying question) rather than a file envelope.
type TextProcessor struct{ Field string }

func (TextProcessor) ProcessorType() string { return "text" }

func (p TextProcessor) CanProcess(partialJSON string) bool {
	return len(partialJSON) > 0
}

func (p TextProcessor) Process(id string, partialJSON string, previous *Output) (*Output, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(partialJSON), &payload); err != nil {
		return nil, nil
	}
	text, _ := payload[p.Field].(string)
	return &Output{FileID: id, Text: text, Status: StatusLoading}, nil
}

func looksLikeFileEnvelope(partialJSON string) bool {
	var probe struct {
		Files []json.RawMessage `json:"files"`
	}
	return json.Unmarshal([]byte(partialJSON), &probe) == nil
}

// processFileEnvelope decodes partialJSON after yml_content extraction,
// since the yml_content body itself is not well-formed JSON and must be
// spliced back in rather than parsed.
func processFileEnvelope(partialJSON string, previous *Output) (*Output, error) {
	placeholdered, ymlText, hasYML := ExtractYMLContent(partialJSON)
	completed := CompleteJSON(placeholdered)

	var env fileEnvelope
	if err := json.Unmarshal([]byte(completed), &env); err != nil || len(env.Files) == 0 {
		return nil, nil
	}
	first := env.Files[0]

	text := first.YMLContent
	if hasYML {
		text = restorePlaceholder(text, ymlText)
		if text == ymlPlaceholder {
			text = ymlText
		}
	}

	return &Output{
		FileID:   first.ID,
		FileName: first.Name,
		Text:     text,
		Status:   StatusLoading,
	}, nil
}
