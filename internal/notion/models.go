// internal/notion/models.go
package notion

// richText is the fragment of Notion's rich text objects we care about.
type richText struct {
	PlainText string `json:"plain_text"`
}

type textBlock struct {
	RichText []richText `json:"rich_text"`
}

// block is one content block of a page. Only the block types the text
// extractor understands are decoded; everything else is skipped.
type block struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children"`

	Paragraph        *textBlock `json:"paragraph,omitempty"`
	Heading1         *textBlock `json:"heading_1,omitempty"`
	Heading2         *textBlock `json:"heading_2,omitempty"`
	Heading3         *textBlock `json:"heading_3,omitempty"`
	BulletedListItem *textBlock `json:"bulleted_list_item,omitempty"`
	NumberedListItem *textBlock `json:"numbered_list_item,omitempty"`
	Code             *textBlock `json:"code,omitempty"`
}

type blockList struct {
	Results    []block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor"`
}

type pageProperty struct {
	Type  string     `json:"type"`
	Title []richText `json:"title,omitempty"`
}

type page struct {
	ID             string                  `json:"id"`
	LastEditedTime string                  `json:"last_edited_time"`
	Properties     map[string]pageProperty `json:"properties"`
}

type queryResult struct {
	Results    []page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}
