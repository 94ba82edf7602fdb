package discover

import (
	"context"
	"path"
	"strings"

	"github.com/pithecene-io/bundler/fetch"
	"github.com/pithecene-io/bundler/types"
)

type specialsResponse struct {
	Success  bool `json:"success"`
	Specials []struct {
		Filename string     `json:"filename"`
		URL      string     `json:"url"`
		Title    string     `json:"title"`
		Size     flexString `json:"size"`
	} `json:"specials"`
}

// Specials lists the specials PDFs. Each PDF gets its own root (the
// directory of its URL) so it lands flat under SpecialsOutput.
// Returns nil when the source is disabled or unavailable.
func (d *Discoverer) Specials(ctx context.Context) []types.FileDescriptor {
	if d.config.SpecialsEndpoint == "" {
		return nil
	}

	var resp specialsResponse
	endpoint := fetch.JoinURL(d.config.BaseURL, d.config.SpecialsEndpoint)
	if err := d.client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		d.logger.Warn("specials unavailable", map[string]any{"error": err.Error()})
		return nil
	}
	if !resp.Success {
		d.logger.Warn("specials API reported no success", nil)
		return nil
	}

	var found []types.FileDescriptor
	for _, s := range resp.Specials {
		remote := strings.TrimLeft(s.URL, "/")
		if s.Filename == "" || remote == "" {
			continue
		}
		title := s.Title
		if title == "" {
			title = s.Filename
		}
		found = append(found, types.FileDescriptor{
			Name:        s.Filename,
			RemotePath:  remote,
			SizeHint:    string(s.Size),
			Category:    "specials",
			DisplayName: title,
			Root: types.RootConfig{
				Path:   parentDir(remote),
				Class:  types.AssetClassPDFs,
				Output: d.config.SpecialsOutput,
			},
		})
	}

	d.metrics.AddDiscovered(len(found))
	d.logger.Info("specials discovered", map[string]any{"found": len(found)})
	return found
}

type colorsDocument struct {
	ItemListElement []struct {
		Item struct {
			Name  string `json:"name"`
			Image []struct {
				URL string `json:"url"`
			} `json:"image"`
		} `json:"item"`
	} `json:"itemListElement"`
}

// Colors lists color swatch images from the colors JSON-LD document.
// Returns nil when the source is disabled or unavailable.
func (d *Discoverer) Colors(ctx context.Context) []types.FileDescriptor {
	if d.config.ColorsEndpoint == "" {
		return nil
	}

	var doc colorsDocument
	endpoint := fetch.JoinURL(d.config.BaseURL, d.config.ColorsEndpoint)
	if err := d.client.GetJSON(ctx, endpoint, nil, &doc); err != nil {
		d.logger.Warn("colors unavailable", map[string]any{"error": err.Error()})
		return nil
	}

	root := d.config.ColorsRoot
	sitePrefix := strings.TrimRight(d.config.BaseURL, "/") + "/"
	var found []types.FileDescriptor
	for _, el := range doc.ItemListElement {
		if len(el.Item.Image) == 0 || el.Item.Image[0].URL == "" {
			continue
		}
		remote := strings.TrimPrefix(el.Item.Image[0].URL, sitePrefix)
		found = append(found, types.FileDescriptor{
			Name:        path.Base(remote),
			RemotePath:  remote,
			Category:    "colors",
			DisplayName: el.Item.Name,
			Root:        root,
		})
	}

	d.metrics.AddDiscovered(len(found))
	d.logger.Info("colors discovered", map[string]any{"found": len(found)})
	return found
}

func parentDir(remote string) string {
	if i := strings.LastIndexByte(remote, '/'); i >= 0 {
		return remote[:i]
	}
	return ""
}
