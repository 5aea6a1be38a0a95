package notion

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// maxChildrenPerRequest is the Notion limit of blocks per create or append
const maxChildrenPerRequest = 100

// Client is the Notion document provider. Documents are pages; templates
// are pages whose text blocks are copied into new documents.
type Client struct {
	api  *notionapi.Client
	conf Config
}

var _ interfaces.DocumentProvider = (*Client)(nil)

// Option configures the client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for API calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.api = notionapi.NewClient(notionapi.Token(c.conf.Token), notionapi.WithHTTPClient(hc), notionapi.WithRetry(3))
	}
}

// New creates a Notion document provider
func New(conf Config, opts ...Option) (*Client, error) {
	if conf.Token == "" {
		return nil, goerr.New("Notion API token is required")
	}

	c := &Client{
		api: notionapi.NewClient(
			notionapi.Token(conf.Token),
			notionapi.WithRetry(3), // Retry up to 3 times on rate limit (HTTP 429)
		),
		conf: conf,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Slug() string             { return PluginSlug }
func (c *Client) Type() types.ProviderType { return types.ProviderTypeDocument }

func classify(err error) error {
	if err == nil {
		return nil
	}
	var rl *notionapi.RateLimitedError
	if errors.As(err, &rl) {
		return model.NewProviderError(PluginSlug, model.ProviderErrorRateLimited, err)
	}
	var ne *notionapi.Error
	if errors.As(err, &ne) {
		switch {
		case ne.Status == http.StatusNotFound:
			return model.NewProviderError(PluginSlug, model.ProviderErrorNotFound, err)
		case ne.Status == http.StatusUnauthorized || ne.Status == http.StatusForbidden:
			return model.NewProviderError(PluginSlug, model.ProviderErrorAuth, err)
		case ne.Status == http.StatusTooManyRequests:
			return model.NewProviderError(PluginSlug, model.ProviderErrorRateLimited, err)
		case ne.Status >= http.StatusInternalServerError:
			return model.NewProviderError(PluginSlug, model.ProviderErrorTransient, err)
		}
	}
	return model.NewProviderError(PluginSlug, model.ProviderErrorFatal, err)
}

// fetchTextBlocks retrieves the text blocks of a page or block including
// nested children, depth first, with their nesting depth.
func (c *Client) fetchTextBlocks(ctx context.Context, blockID string, depth int) ([]textBlock, []int, error) {
	var blocks []textBlock
	var depths []int
	var cursor notionapi.Cursor

	for {
		resp, err := c.api.Block.GetChildren(ctx, notionapi.BlockID(blockID), &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    100,
		})
		if err != nil {
			return nil, nil, goerr.Wrap(classify(err), "failed to get block children", goerr.V("blockID", blockID))
		}

		for _, blockObj := range resp.Results {
			tb, ok := toTextBlock(blockObj)
			if ok {
				blocks = append(blocks, tb)
				depths = append(depths, depth)
			}
			if blockObj.GetHasChildren() {
				children, childDepths, err := c.fetchTextBlocks(ctx, blockObj.GetID().String(), depth+1)
				if err != nil {
					return nil, nil, err
				}
				blocks = append(blocks, children...)
				depths = append(depths, childDepths...)
			}
		}

		if !resp.HasMore {
			break
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}

	return blocks, depths, nil
}

func (c *Client) weblink(page *notionapi.Page) string {
	if page.URL != "" {
		return page.URL
	}
	if c.conf.WorkspaceURL == "" {
		return ""
	}
	return strings.TrimRight(c.conf.WorkspaceURL, "/") + "/" + strings.ReplaceAll(page.ID.String(), "-", "")
}

// CreateFromTemplate creates a page under parentID titled name with the
// text blocks of the template page. Nested template blocks are flattened.
func (c *Client) CreateFromTemplate(ctx context.Context, name, templateID, parentID string) (*model.Resource, error) {
	if parentID == "" {
		parentID = c.conf.ParentPageID
	}
	if parentID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "no parent page for document", goerr.V("name", name))
	}

	var children []notionapi.Block
	if templateID != "" {
		blocks, _, err := c.fetchTextBlocks(ctx, templateID, 0)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read document template", goerr.V("templateID", templateID))
		}
		for _, b := range blocks {
			children = append(children, newBlock(b.kind, b.plain(), b.checked))
		}
	}

	first := children
	if len(first) > maxChildrenPerRequest {
		first = first[:maxChildrenPerRequest]
	}
	page, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{Type: notionapi.ParentTypePageID, PageID: notionapi.PageID(parentID)},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{Title: plainRichText(name)},
		},
		Children: first,
	})
	if err != nil {
		return nil, goerr.Wrap(classify(err), "failed to create page", goerr.V("name", name), goerr.V("parentID", parentID))
	}

	for rest := children[len(first):]; len(rest) > 0; {
		n := min(len(rest), maxChildrenPerRequest)
		if _, err := c.api.Block.AppendChildren(ctx, notionapi.BlockID(page.ID.String()), &notionapi.AppendBlockChildrenRequest{
			Children: rest[:n],
		}); err != nil {
			return nil, goerr.Wrap(classify(err), "failed to append template blocks", goerr.V("pageID", page.ID))
		}
		rest = rest[n:]
	}

	return &model.Resource{
		Type:       types.ResourceTypeDocument,
		ResourceID: page.ID.String(),
		Weblink:    c.weblink(page),
	}, nil
}

// Update fills {{key}} placeholders of every text block with values
func (c *Client) Update(ctx context.Context, documentID string, values map[string]string) error {
	blocks, _, err := c.fetchTextBlocks(ctx, documentID, 0)
	if err != nil {
		return goerr.Wrap(err, "failed to read document", goerr.V("documentID", documentID))
	}

	for _, b := range blocks {
		text := b.plain()
		if !HasPlaceholder(text) {
			continue
		}
		filled := FillPlaceholders(text, values)
		if filled == text {
			continue
		}
		if _, err := c.api.Block.Update(ctx, notionapi.BlockID(b.id), updateRequest(b.kind, filled, b.checked)); err != nil {
			return goerr.Wrap(classify(err), "failed to update block", goerr.V("documentID", documentID), goerr.V("blockID", b.id))
		}
	}
	return nil
}

// OpenAccess is not exposed by the Notion API; sharing follows the parent
// page, so the call only records the request.
func (c *Client) OpenAccess(ctx context.Context, documentID string) error {
	logging.From(ctx).Info("Notion sharing follows the parent page, skip open access", "documentID", documentID)
	return nil
}

// MarkReadOnly is not exposed by the Notion API either
func (c *Client) MarkReadOnly(ctx context.Context, documentID string) error {
	logging.From(ctx).Info("Notion pages cannot be locked through the API, skip read-only", "documentID", documentID)
	return nil
}

// FetchText returns the document as markdown
func (c *Client) FetchText(ctx context.Context, documentID string) (string, error) {
	blocks, depths, err := c.fetchTextBlocks(ctx, documentID, 0)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read document", goerr.V("documentID", documentID))
	}
	return toMarkdown(blocks, depths), nil
}

// Delete archives the page
func (c *Client) Delete(ctx context.Context, documentID string) error {
	if _, err := c.api.Page.Update(ctx, notionapi.PageID(documentID), &notionapi.PageUpdateRequest{
		Archived:   true,
		Properties: notionapi.Properties{},
	}); err != nil {
		return goerr.Wrap(classify(err), "failed to archive page", goerr.V("documentID", documentID))
	}
	return nil
}
