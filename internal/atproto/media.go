package atproto

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"atproto-mcp/internal/domain"
	"atproto-mcp/internal/tool"
)

const (
	maxGalleryImages = 4
	maxImageBytes    = 1 << 20
	maxVideoBytes    = 50 << 20
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

type imagePostArgs struct {
	Text  string `json:"text" validate:"required" jsonschema_description:"The post text content"`
	Image string `json:"image" validate:"required" jsonschema_description:"Path to the image file (JPEG, PNG, GIF, or WebP)"`
}

type uploadArgs struct {
	Filepath string `json:"filepath" validate:"required" jsonschema_description:"Path to media file (images: JPEG/PNG/GIF/WebP, max 1MB; videos: MP4, max 50MB)"`
}

type galleryArgs struct {
	Text   string   `json:"text" validate:"required" jsonschema_description:"The post text content"`
	Images []string `json:"images" validate:"required" jsonschema:"minItems=1,maxItems=4" jsonschema_description:"Array of paths to image files (up to 4 images)"`
}

type videoPostArgs struct {
	Text  string `json:"text" validate:"required" jsonschema_description:"The post text content"`
	Video string `json:"video" validate:"required" jsonschema_description:"Path to MP4 video file (max 50MB)"`
}

type uploadResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Filepath string `json:"filepath"`
	Size     int64  `json:"size"`
	Kind     string `json:"kind"`
	Note     string `json:"note,omitempty"`
}

func (ts *Toolset) mediaGroup() tool.Group {
	return tool.Group{Name: GroupMedia, Tools: []domain.Tool{
		tool.New("post_with_image", "Create a post with an image attachment",
			func(ctx context.Context, in imagePostArgs) (Message, error) {
				return message(ts.client.Post(ctx, in.Text, in.Image))
			}),
		tool.New("upload_media", "Check a media file (image or video) for upload", checkMedia),
		tool.New("post_with_gallery", "Create a post with multiple images (gallery)", ts.postGallery),
		tool.New("post_with_video", "Create a post with a video attachment",
			func(ctx context.Context, in videoPostArgs) (Message, error) {
				msg, err := message(ts.client.Post(ctx, in.Text, in.Video))
				if err == nil {
					msg.Note = "Video file attached as media; native video embeds are not supported yet"
				}
				return msg, err
			}),
	}}
}

// postGallery posts with the first image only. The bounds are checked before
// any external call.
func (ts *Toolset) postGallery(ctx context.Context, in galleryArgs) (Message, error) {
	switch n := len(in.Images); {
	case n == 0:
		return Message{}, domain.Validationf("at least one image is required")
	case n > maxGalleryImages:
		return Message{}, domain.Validationf("maximum %d images allowed in a gallery, got %d", maxGalleryImages, n)
	}
	msg, err := message(ts.client.Post(ctx, in.Text, in.Images[0]))
	if err != nil {
		return msg, err
	}
	if n := len(in.Images); n > 1 {
		msg.Note = fmt.Sprintf("Posted with the first image only; %d of %d images were not attached", n-1, n)
	}
	return msg, nil
}

// checkMedia validates a local media file against the upload limits.
// Blob upload itself happens inside `atproto post --image`.
func checkMedia(_ context.Context, in uploadArgs) (uploadResult, error) {
	info, err := os.Stat(in.Filepath)
	if err != nil {
		return uploadResult{}, domain.IOFailure("stat media file", err)
	}
	if info.IsDir() {
		return uploadResult{}, domain.Validationf("%s is a directory", in.Filepath)
	}

	ext := strings.ToLower(filepath.Ext(in.Filepath))
	var kind string
	var limit int64
	switch {
	case imageExts[ext]:
		kind, limit = "image", maxImageBytes
	case ext == ".mp4":
		kind, limit = "video", maxVideoBytes
	default:
		return uploadResult{}, domain.Validationf("unsupported media type %q", ext)
	}
	if info.Size() > limit {
		return uploadResult{}, domain.Validationf("%s is %d bytes, %s limit is %d bytes", in.Filepath, info.Size(), kind, limit)
	}

	return uploadResult{
		Success:  true,
		Message:  fmt.Sprintf("Media file '%s' is ready to upload", in.Filepath),
		Filepath: in.Filepath,
		Size:     info.Size(),
		Kind:     kind,
		Note:     "Attach it with post_with_image or post_with_video",
	}, nil
}
