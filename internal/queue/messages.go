package queue

// DocumentRef points at an uploaded file in S3.
type DocumentRef struct {
	DocumentID string `json:"document_id"`
	Key        string `json:"key"`
	Name       string `json:"name"`
}

// BuildJobMsg asks the server's build consumer to load a batch of uploaded
// documents and merge them into the graph.
type BuildJobMsg struct {
	BatchID   string        `json:"batch_id"`
	Documents []DocumentRef `json:"documents"`
}

// IndexJobMsg asks the worker to embed one document into the external vector
// index.
type IndexJobMsg struct {
	Document DocumentRef `json:"document"`
}

// DeleteJobMsg asks the worker to remove a document's file and its indexed
// passages.
type DeleteJobMsg struct {
	Document DocumentRef `json:"document"`
}
