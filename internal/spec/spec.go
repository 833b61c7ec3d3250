// Package spec defines the caller-supplied render specification: an ordered
// list of pages plus the shared resources (images) their elements reference.
package spec

import (
	"fmt"

	"github.com/pagepress/export-api/internal/apperror"
)

type Document struct {
	Title     string     `json:"title,omitempty"`
	Pages     []Page     `json:"pages"`
	Resources []Resource `json:"resources,omitempty"`

	// Compress controls whether the merged document is sent to the
	// compression backend. Nil means yes.
	Compress *bool `json:"compress,omitempty"`
}

type Page struct {
	Size     string    `json:"size,omitempty"`
	Elements []Element `json:"elements"`
}

type Element struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	ResourceID string `json:"resourceId,omitempty"`
	Style      string `json:"style,omitempty"`
}

type Resource struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	MIME string `json:"mime,omitempty"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

const (
	ElementText    = "text"
	ElementHeading = "heading"
	ElementImage   = "image"
	ElementDivider = "divider"
)

// CompressRequested reports whether the merged artifact should be compressed.
func (d *Document) CompressRequested() bool {
	return d.Compress == nil || *d.Compress
}

// Validate checks the document structurally: a non-empty page list, resources
// with identifiers, and no element referencing an unknown resource.
func (d *Document) Validate() error {
	if len(d.Pages) == 0 {
		return apperror.New(apperror.BadRequest, "render spec must contain at least one page")
	}

	known := make(map[string]struct{}, len(d.Resources))
	for i, r := range d.Resources {
		if r.ID == "" {
			return apperror.New(apperror.BadRequest, fmt.Sprintf("resource %d is missing an id", i))
		}
		if r.Data == "" && r.URL == "" {
			return apperror.New(apperror.BadRequest, fmt.Sprintf("resource %q has neither data nor url", r.ID))
		}
		known[r.ID] = struct{}{}
	}

	for pi, p := range d.Pages {
		for ei, e := range p.Elements {
			if e.Type == "" {
				return apperror.New(apperror.BadRequest,
					fmt.Sprintf("page %d element %d is missing a type", pi, ei))
			}
			if e.ResourceID != "" {
				if _, ok := known[e.ResourceID]; !ok {
					return apperror.New(apperror.BadRequest,
						fmt.Sprintf("page %d element %d references unknown resource %q", pi, ei, e.ResourceID))
				}
			}
		}
	}

	return nil
}

// PageSlice returns a single-page document holding page i and exactly the
// resources referenced by that page's elements. The renderer only ever sees
// the slice, so a page holding one of twenty images carries one image.
func (d *Document) PageSlice(i int) Document {
	page := d.Pages[i]

	referenced := make(map[string]struct{})
	for _, e := range page.Elements {
		if e.ResourceID != "" {
			referenced[e.ResourceID] = struct{}{}
		}
	}

	var resources []Resource
	for _, r := range d.Resources {
		if _, ok := referenced[r.ID]; ok {
			resources = append(resources, r)
		}
	}

	return Document{
		Title:     d.Title,
		Pages:     []Page{page},
		Resources: resources,
	}
}

// Resource returns the resource with the given id, or nil.
func (d *Document) Resource(id string) *Resource {
	for i := range d.Resources {
		if d.Resources[i].ID == id {
			return &d.Resources[i]
		}
	}
	return nil
}
