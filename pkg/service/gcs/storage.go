package gcs

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/google"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// PluginSlug is the plugin name of the GCS storage provider
const PluginSlug = "gcs-storage"

// folderMarker is the placeholder object that makes an empty prefix visible
const folderMarker = ".folder"

// maxFetchBytes bounds the content read per fetched file
const maxFetchBytes = 10 << 20

// Config is the plugin configuration of the GCS storage provider
type Config struct {
	Bucket string `json:"bucket"`
	// RootPrefix is the parent of folders created without an explicit parent
	RootPrefix string `json:"root_prefix,omitempty"`
	// CredentialsJSON is a service account key; application default
	// credentials are used when empty
	CredentialsJSON string `json:"credentials_json,omitempty" masq:"secret"`
}

// Client stores subject folders as object prefixes of one bucket. Members
// are granted READER on the objects of the folder, which requires a bucket
// with fine-grained access control.
type Client struct {
	gcs  *storage.Client
	conf Config
}

var _ interfaces.StorageProvider = (*Client)(nil)

// New creates a GCS storage provider
func New(ctx context.Context, conf Config, opts ...option.ClientOption) (*Client, error) {
	if conf.Bucket == "" {
		return nil, goerr.New("GCS bucket is required")
	}
	if conf.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(conf.CredentialsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GCS storage client", goerr.V("bucket", conf.Bucket))
	}
	return &Client{gcs: client, conf: conf}, nil
}

func (c *Client) Slug() string             { return PluginSlug }
func (c *Client) Type() types.ProviderType { return types.ProviderTypeStorage }

// Close releases the underlying client
func (c *Client) Close() error {
	return c.gcs.Close()
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return model.NewProviderError(PluginSlug, model.ProviderErrorNotFound, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return model.NewProviderError(PluginSlug, google.ErrorKind(gerr.Code), err)
	}
	return model.NewProviderError(PluginSlug, model.ProviderErrorFatal, err)
}

// FolderPrefix returns the object prefix of folder name under parent
func FolderPrefix(parent, name string) string {
	p := path.Join(strings.Trim(parent, "/"), strings.Trim(name, "/"))
	return strings.TrimPrefix(p, "/") + "/"
}

// MatchMimeType reports whether contentType is one of mimeTypes. An empty
// list matches everything; parameters such as charset are ignored.
func MatchMimeType(contentType string, mimeTypes []string) bool {
	if len(mimeTypes) == 0 {
		return true
	}
	base, _, _ := strings.Cut(contentType, ";")
	base = strings.TrimSpace(base)
	for _, m := range mimeTypes {
		if strings.EqualFold(base, m) {
			return true
		}
	}
	return false
}

func (c *Client) objects(ctx context.Context, prefix string, fn func(*storage.ObjectAttrs) error) error {
	it := c.gcs.Bucket(c.conf.Bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(classify(err), "failed to list objects", goerr.V("prefix", prefix))
		}
		if err := fn(attrs); err != nil {
			return err
		}
	}
}

// CreateFolder writes the folder marker and grants members read access
func (c *Client) CreateFolder(ctx context.Context, name, parentID string, members []string) (*model.Resource, error) {
	if parentID == "" {
		parentID = c.conf.RootPrefix
	}
	prefix := FolderPrefix(parentID, name)

	w := c.gcs.Bucket(c.conf.Bucket).Object(prefix + folderMarker).NewWriter(ctx)
	w.ContentType = "text/plain"
	w.Metadata = map[string]string{"subject": name}
	if _, err := io.WriteString(w, name); err != nil {
		_ = w.Close()
		return nil, goerr.Wrap(classify(err), "failed to write folder marker", goerr.V("prefix", prefix))
	}
	if err := w.Close(); err != nil {
		return nil, goerr.Wrap(classify(err), "failed to create folder", goerr.V("prefix", prefix))
	}

	if err := c.AddMembers(ctx, prefix, members); err != nil {
		return nil, err
	}

	return &model.Resource{
		Type:       types.ResourceTypeStorage,
		ResourceID: prefix,
		Weblink:    "https://console.cloud.google.com/storage/browser/" + c.conf.Bucket + "/" + prefix,
	}, nil
}

func memberEntity(email string) storage.ACLEntity {
	return storage.ACLEntity("user-" + strings.ToLower(email))
}

// AddMembers grants READER on every object of the folder
func (c *Client) AddMembers(ctx context.Context, folderID string, emails []string) error {
	if len(emails) == 0 {
		return nil
	}
	return c.objects(ctx, folderID, func(attrs *storage.ObjectAttrs) error {
		acl := c.gcs.Bucket(c.conf.Bucket).Object(attrs.Name).ACL()
		for _, email := range emails {
			if err := acl.Set(ctx, memberEntity(email), storage.RoleReader); err != nil {
				return goerr.Wrap(classify(err), "failed to grant object access",
					goerr.V("object", attrs.Name), goerr.V("email", email))
			}
		}
		return nil
	})
}

// RemoveMembers revokes the member grants; missing grants are ignored
func (c *Client) RemoveMembers(ctx context.Context, folderID string, emails []string) error {
	if len(emails) == 0 {
		return nil
	}
	return c.objects(ctx, folderID, func(attrs *storage.ObjectAttrs) error {
		acl := c.gcs.Bucket(c.conf.Bucket).Object(attrs.Name).ACL()
		for _, email := range emails {
			if err := acl.Delete(ctx, memberEntity(email)); err != nil {
				if model.ProviderErrorKindOf(classify(err)) == model.ProviderErrorNotFound {
					continue
				}
				return goerr.Wrap(classify(err), "failed to revoke object access",
					goerr.V("object", attrs.Name), goerr.V("email", email))
			}
		}
		return nil
	})
}

// Delete removes every object of the folder
func (c *Client) Delete(ctx context.Context, folderID string) error {
	var deleted int
	err := c.objects(ctx, folderID, func(attrs *storage.ObjectAttrs) error {
		if err := c.gcs.Bucket(c.conf.Bucket).Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return goerr.Wrap(classify(err), "failed to delete object", goerr.V("object", attrs.Name))
		}
		deleted++
		return nil
	})
	logging.From(ctx).Info("Deleted storage folder", "prefix", folderID, "objects", deleted)
	return err
}

// FetchFiles returns the files of the folder whose content type is one of
// mimeTypes
func (c *Client) FetchFiles(ctx context.Context, folderID string, mimeTypes []string) ([]*model.StoredFile, error) {
	var files []*model.StoredFile
	err := c.objects(ctx, folderID, func(attrs *storage.ObjectAttrs) error {
		if path.Base(attrs.Name) == folderMarker || !MatchMimeType(attrs.ContentType, mimeTypes) {
			return nil
		}

		r, err := c.gcs.Bucket(c.conf.Bucket).Object(attrs.Name).NewReader(ctx)
		if err != nil {
			return goerr.Wrap(classify(err), "failed to open object", goerr.V("object", attrs.Name))
		}
		defer r.Close()

		content, err := io.ReadAll(io.LimitReader(r, maxFetchBytes))
		if err != nil {
			return goerr.Wrap(classify(err), "failed to read object", goerr.V("object", attrs.Name))
		}
		files = append(files, &model.StoredFile{
			ID:       attrs.Name,
			Name:     path.Base(attrs.Name),
			MimeType: attrs.ContentType,
			Content:  content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
