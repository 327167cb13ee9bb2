package interfaces

// PDFPageContent represents extracted content from a single PDF page, reused
// by Extractor.Extract for any format with a natural page breakdown.
type PDFPageContent struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}
