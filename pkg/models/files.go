package models

import (
	"fmt"
	"math"
	"time"
)

// File is an object saved from the notebook into the user's storage area
type File struct {
	Name         string    `json:"name"`
	FullPath     string    `json:"fullPath"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	DownloadURL  string    `json:"downloadUrl,omitempty"`
}

// Folder is a common prefix under the user's storage area
type Folder struct {
	Name     string `json:"name"`
	FullPath string `json:"fullPath"`
}

// FileListing is the payload returned by the files endpoint
type FileListing struct {
	Files   []File   `json:"files"`
	Folders []Folder `json:"folders"`
}

// DeleteFileRequest is the payload for removing a file
type DeleteFileRequest struct {
	FilePath string `json:"filePath"`
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatSize renders a byte count the way the dashboard shows it (1.5 KB, 2 MB).
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := math.Round(float64(bytes)/math.Pow(1024, float64(i))*100) / 100
	return fmt.Sprintf("%s %s", trimFloat(v), sizeUnits[i])
}

func trimFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	s := fmt.Sprintf("%.2f", v)
	if s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	return s
}
