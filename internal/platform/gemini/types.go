package gemini

// childSchema is one child entry of the model's JSON response.
type childSchema struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

// childrenSchema is the structure the text model is asked to produce: a
// binary question and the two children answering it.
type childrenSchema struct {
	Question string      `json:"question"`
	Left     childSchema `json:"left"`
	Right    childSchema `json:"right"`
}

// pathEntry is the serialized form of one ancestor step in the prompt.
type pathEntry struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Context     string `json:"context"`
	Side        string `json:"side,omitempty"`
}
