package notion

import (
	"regexp"
	"strings"

	"github.com/jomei/notionapi"
)

// PluginSlug is the plugin name of the Notion document provider
const PluginSlug = "notion-document"

// Config is the plugin configuration of the Notion document provider
type Config struct {
	Token string `json:"token" masq:"secret"`
	// ParentPageID receives documents created without an explicit parent
	ParentPageID string `json:"parent_page_id,omitempty"`
	// WorkspaceURL prefixes page links when the API omits them
	WorkspaceURL string `json:"workspace_url,omitempty"`
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// FillPlaceholders replaces {{key}} in text with values[key]. Unknown keys
// are left untouched.
func FillPlaceholders(text string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := values[key]; ok {
			return v
		}
		return m
	})
}

// HasPlaceholder reports whether text contains a {{key}} placeholder
func HasPlaceholder(text string) bool {
	return placeholderPattern.MatchString(text)
}

// textBlock is the editable view of a Notion block carrying rich text
type textBlock struct {
	id       string
	kind     notionapi.BlockType
	richText []notionapi.RichText
	checked  bool
	children bool
}

func (b textBlock) plain() string {
	var sb strings.Builder
	for _, rt := range b.richText {
		if rt.PlainText != "" {
			sb.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			sb.WriteString(rt.Text.Content)
		}
	}
	return sb.String()
}

// markdownPrefix is the line prefix of each supported block type
var markdownPrefix = map[notionapi.BlockType]string{
	notionapi.BlockTypeParagraph:        "",
	notionapi.BlockTypeHeading1:         "# ",
	notionapi.BlockTypeHeading2:         "## ",
	notionapi.BlockTypeHeading3:         "### ",
	notionapi.BlockTypeBulletedListItem: "- ",
	notionapi.BlockTypeNumberedListItem: "1. ",
	notionapi.BlockTypeQuote:            "> ",
	notionapi.BlockTypeToDo:             "- [ ] ",
}

func toTextBlock(block notionapi.Block) (textBlock, bool) {
	tb := textBlock{
		id:       block.GetID().String(),
		kind:     block.GetType(),
		children: block.GetHasChildren(),
	}
	switch b := block.(type) {
	case *notionapi.ParagraphBlock:
		tb.richText = b.Paragraph.RichText
	case *notionapi.Heading1Block:
		tb.richText = b.Heading1.RichText
	case *notionapi.Heading2Block:
		tb.richText = b.Heading2.RichText
	case *notionapi.Heading3Block:
		tb.richText = b.Heading3.RichText
	case *notionapi.BulletedListItemBlock:
		tb.richText = b.BulletedListItem.RichText
	case *notionapi.NumberedListItemBlock:
		tb.richText = b.NumberedListItem.RichText
	case *notionapi.QuoteBlock:
		tb.richText = b.Quote.RichText
	case *notionapi.ToDoBlock:
		tb.richText = b.ToDo.RichText
		tb.checked = b.ToDo.Checked
	default:
		return tb, false
	}
	return tb, true
}

func plainRichText(s string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

// newBlock builds a fresh block of the type with the text, for appending
func newBlock(kind notionapi.BlockType, text string, checked bool) notionapi.Block {
	basic := notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: kind}
	rt := plainRichText(text)
	switch kind {
	case notionapi.BlockTypeHeading1:
		return &notionapi.Heading1Block{BasicBlock: basic, Heading1: notionapi.Heading{RichText: rt}}
	case notionapi.BlockTypeHeading2:
		return &notionapi.Heading2Block{BasicBlock: basic, Heading2: notionapi.Heading{RichText: rt}}
	case notionapi.BlockTypeHeading3:
		return &notionapi.Heading3Block{BasicBlock: basic, Heading3: notionapi.Heading{RichText: rt}}
	case notionapi.BlockTypeBulletedListItem:
		return &notionapi.BulletedListItemBlock{BasicBlock: basic, BulletedListItem: notionapi.ListItem{RichText: rt}}
	case notionapi.BlockTypeNumberedListItem:
		return &notionapi.NumberedListItemBlock{BasicBlock: basic, NumberedListItem: notionapi.ListItem{RichText: rt}}
	case notionapi.BlockTypeQuote:
		return &notionapi.QuoteBlock{BasicBlock: basic, Quote: notionapi.Quote{RichText: rt}}
	case notionapi.BlockTypeToDo:
		return &notionapi.ToDoBlock{BasicBlock: basic, ToDo: notionapi.ToDo{RichText: rt, Checked: checked}}
	default:
		basic.Type = notionapi.BlockTypeParagraph
		return &notionapi.ParagraphBlock{BasicBlock: basic, Paragraph: notionapi.Paragraph{RichText: rt}}
	}
}

// updateRequest builds the request replacing the text of a block
func updateRequest(kind notionapi.BlockType, text string, checked bool) *notionapi.BlockUpdateRequest {
	rt := plainRichText(text)
	req := &notionapi.BlockUpdateRequest{}
	switch kind {
	case notionapi.BlockTypeHeading1:
		req.Heading1 = &notionapi.Heading{RichText: rt}
	case notionapi.BlockTypeHeading2:
		req.Heading2 = &notionapi.Heading{RichText: rt}
	case notionapi.BlockTypeHeading3:
		req.Heading3 = &notionapi.Heading{RichText: rt}
	case notionapi.BlockTypeBulletedListItem:
		req.BulletedListItem = &notionapi.ListItem{RichText: rt}
	case notionapi.BlockTypeNumberedListItem:
		req.NumberedListItem = &notionapi.ListItem{RichText: rt}
	case notionapi.BlockTypeQuote:
		req.Quote = &notionapi.Quote{RichText: rt}
	case notionapi.BlockTypeToDo:
		req.ToDo = &notionapi.ToDo{RichText: rt, Checked: checked}
	default:
		req.Paragraph = &notionapi.Paragraph{RichText: rt}
	}
	return req
}

// toMarkdown renders text blocks as markdown, indenting nested blocks
func toMarkdown(blocks []textBlock, depth []int) string {
	var sb strings.Builder
	for i, b := range blocks {
		sb.WriteString(strings.Repeat("  ", depth[i]))
		prefix := markdownPrefix[b.kind]
		if b.kind == notionapi.BlockTypeToDo && b.checked {
			prefix = "- [x] "
		}
		sb.WriteString(prefix)
		sb.WriteString(b.plain())
		sb.WriteString("\n")
	}
	return sb.String()
}
