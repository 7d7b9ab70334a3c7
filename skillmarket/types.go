// Package skillmarket implements the content-addressed skill marketplace:
// artifact creation with manifest-hash identity, listings, purchases routed
// through the ledger, and reviews. Grounded on the
// vm/modules/asset (templated, content-bearing asset minting) and
// vm/modules/market (list/buy against a ledger balance) modules, with the
// asset id's role taken over by the skill manifest hash.
package skillmarket

// SkillType classifies a marketplace artifact.
type SkillType string

const (
	TypeSkill   SkillType = "skill"
	TypeContent SkillType = "content"
	TypeCompute SkillType = "compute"
	TypeService SkillType = "service"
)

// ManifestFile is one entry in a skill's ordered file list.
type ManifestFile struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
}

// Manifest is the canonical descriptor of a skill artifact; its canonical
// hash is the artifact's id.
type Manifest struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Version      string         `json:"version"`
	Type         SkillType      `json:"type"`
	Files        []ManifestFile `json:"files"`
	Dependencies []string       `json:"dependencies,omitempty"`
	License      string         `json:"license"`
	EntryPoint   string         `json:"entry_point,omitempty"`
	Creator      string         `json:"creator"`
}

// Skill is a stored artifact: its manifest plus the actual file contents
// the manifest's hashes were computed from.
type Skill struct {
	ID        string            `json:"id"` // hash(Manifest)
	Manifest  Manifest          `json:"manifest"`
	Contents  map[string][]byte `json:"contents"` // path -> content
	CreatedAt int64             `json:"created_at"`
}

// ListingStatus is a listing's lifecycle state.
type ListingStatus string

const (
	ListingActive   ListingStatus = "active"
	ListingSold     ListingStatus = "sold"
	ListingDelisted ListingStatus = "delisted"
)

// Review is a buyer's rating of a purchased skill. Rating is hard-clamped
// to 1-5.
type Review struct {
	Reviewer  string `json:"reviewer"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	Timestamp int64  `json:"timestamp"`
}

// Listing is a skill sale offer.
type Listing struct {
	ID        string        `json:"id"`
	SkillID   string        `json:"skill_id"`
	Seller    string        `json:"seller"` // must equal the skill's creator
	Price     uint64        `json:"price"`
	Status    ListingStatus `json:"status"`
	CreatedAt int64         `json:"created_at"`

	SalesCount uint64   `json:"sales_count"`
	Rating     float64  `json:"rating"`
	Reviews    []Review `json:"reviews"`
}

// Purchase records one completed skill sale.
type Purchase struct {
	SkillID   string `json:"skill_id"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Price     uint64 `json:"price"`
	Timestamp int64  `json:"timestamp"`
	TxDigest  string `json:"tx_digest"`
}

// PurchasePayload is the ledger transaction payload carried by a
// skill_purchase transaction.
type PurchasePayload struct {
	SkillID      string `json:"skill_id"`
	ManifestHash string `json:"manifest_hash"`
	Creator      string `json:"creator"`
	Price        uint64 `json:"price"`
	CreatedAt    int64  `json:"created_at"`
}

// FileInput is a caller-supplied file for create_skill: path and raw
// content, in the order they should appear in the manifest.
type FileInput struct {
	Path    string
	Content []byte
}
