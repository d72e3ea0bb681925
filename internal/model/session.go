package model

// AIMode selects the parsing strategy for a capture session.
type AIMode string

const (
	// ModeDefault uses the fast parse strategy only.
	ModeDefault AIMode = "default"
	// ModeHybrid uses the slower, more accurate strategy only.
	ModeHybrid AIMode = "hybrid"
	// ModeAuto tries the default strategy and escalates to hybrid on failure.
	ModeAuto AIMode = "auto"
)

// ValidAIModes are the accepted capture session strategies.
var ValidAIModes = map[AIMode]bool{
	ModeDefault: true,
	ModeHybrid:  true,
	ModeAuto:    true,
}

// Page is one captured scan destined for a manifest chunk.
type Page struct {
	Data     string `json:"data"` // base64 image payload
	MimeType string `json:"mimeType"`
}

// Chunk is the set of captured pages representing one manifest before
// submission to parsing.
type Chunk struct {
	ID    string `json:"id"`
	Pages []Page `json:"images"`
}

// CaptureSession models one monthly capture run. At most one session exists
// process-wide; it is durable until explicitly cleared or superseded.
type CaptureSession struct {
	ID             string  `json:"id"`
	FolderID       string  `json:"folderId"`
	FolderName     string  `json:"folderName"`
	AIMode         AIMode  `json:"aiMode"`
	PendingChunks  []Chunk `json:"pendingChunks"`
	CurrentChunk   []Page  `json:"currentChunk"`
	TotalCaptured  int     `json:"totalManifestsCaptured"`
	ProcessedCount int     `json:"processedCount"`
	IsProcessing   bool    `json:"isProcessing"`
	StatusLog      string  `json:"statusLog"`
}
