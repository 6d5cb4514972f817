package pack

import (
	"time"

	"imagebank/internal/blob"
	"imagebank/internal/models"
)

// manifest is the COCO-style description placed at manifest.json inside
// every packaged archive. Ids render as 32-char hex strings.
type manifest struct {
	Info        manifestInfo         `json:"info"`
	Licenses    []manifestLicense    `json:"licenses"`
	Images      []manifestImage      `json:"images"`
	Annotations []manifestAnnotation `json:"annotations"`
	Categories  []manifestCategory   `json:"categories"`
}

type manifestInfo struct {
	Description string `json:"description"`
	URL         string `json:"url"`
	Version     string `json:"version"`
	Year        int    `json:"year"`
	Contributor string `json:"contributor"`
	DateCreated string `json:"date_created"`
}

type manifestLicense struct {
	URL  string `json:"url"`
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type manifestImage struct {
	ID           string `json:"id"`
	License      int    `json:"license"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileName     string `json:"file_name"`
	DateCaptured string `json:"date_captured"`
}

type manifestAnnotation struct {
	ID         int64   `json:"id"`
	CategoryID int64   `json:"category_id"`
	IsCrowd    int     `json:"iscrowd"`
	Area       float64 `json:"area"`
	Bbox       [4]int  `json:"bbox"`
}

type manifestCategory struct {
	SuperCategory string `json:"supercategory,omitempty"`
	ID            int64  `json:"id"`
	Name          string `json:"name"`
}

func newManifest(categories []manifestCategory) *manifest {
	now := time.Now().UTC()
	return &manifest{
		Info: manifestInfo{
			Description: "Shared image dataset export",
			URL:         "",
			Version:     "1.0",
			Year:        now.Year(),
			Contributor: "imagebank",
			DateCreated: now.Format(time.RFC3339),
		},
		Licenses: []manifestLicense{
			{URL: "", ID: 1, Name: "All rights reserved"},
		},
		Images:      []manifestImage{},
		Annotations: []manifestAnnotation{},
		Categories:  categories,
	}
}

func (m *manifest) addImage(img models.Image, width, height int) {
	m.Images = append(m.Images, manifestImage{
		ID:           blob.Key(img.ID),
		License:      1,
		Width:        width,
		Height:       height,
		FileName:     blob.Key(img.ID) + canonicalExt,
		DateCaptured: img.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (m *manifest) addAnnotation(a models.Annotation) {
	iscrowd := 0
	if a.IsCrowd {
		iscrowd = 1
	}
	m.Annotations = append(m.Annotations, manifestAnnotation{
		ID:         a.ID,
		CategoryID: a.CategoryID,
		IsCrowd:    iscrowd,
		Area:       float64(a.BboxW * a.BboxH),
		Bbox:       [4]int{a.BboxX, a.BboxY, a.BboxW, a.BboxH},
	})
}
