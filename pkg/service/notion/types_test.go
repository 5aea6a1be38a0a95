package notion

import (
	"testing"

	"github.com/jomei/notionapi"
	"github.com/m-mizutani/gt"
)

func TestFillPlaceholders(t *testing.T) {
	values := map[string]string{"name": "default-security-0001", "commander": "bob"}

	gt.Value(t, FillPlaceholders("Incident {{name}}", values)).Equal("Incident default-security-0001")
	gt.Value(t, FillPlaceholders("IC: {{ commander }}", values)).Equal("IC: bob")
	gt.Value(t, FillPlaceholders("{{unknown}} stays", values)).Equal("{{unknown}} stays")
	gt.Bool(t, HasPlaceholder("plain text")).False()
	gt.Bool(t, HasPlaceholder("{{name}}")).True()
}

func TestToMarkdown(t *testing.T) {
	blocks := []textBlock{
		{kind: notionapi.BlockTypeHeading1, richText: plainRichText("Summary")},
		{kind: notionapi.BlockTypeParagraph, richText: []notionapi.RichText{{PlainText: "Phishing "}, {PlainText: "campaign"}}},
		{kind: notionapi.BlockTypeBulletedListItem, richText: plainRichText("contain")},
		{kind: notionapi.BlockTypeToDo, richText: plainRichText("nested"), checked: true},
		{kind: notionapi.BlockTypeQuote, richText: plainRichText("note")},
	}
	depths := []int{0, 0, 0, 1, 0}

	want := "# Summary\n" +
		"Phishing campaign\n" +
		"- contain\n" +
		"  - [x] nested\n" +
		"> note\n"
	gt.Value(t, toMarkdown(blocks, depths)).Equal(want)
}

func TestUpdateRequest(t *testing.T) {
	req := updateRequest(notionapi.BlockTypeHeading2, "Timeline", false)
	gt.Value(t, req.Heading2).NotNil()
	gt.Value(t, req.Paragraph).Nil()
	gt.Value(t, req.Heading2.RichText[0].Text.Content).Equal("Timeline")

	req = updateRequest(notionapi.BlockTypeToDo, "done", true)
	gt.Bool(t, req.ToDo.Checked).True()
}
