package takeaway

import (
	"safesight/internal/content"
	"safesight/internal/core"
)

// ListingInput is the wire and file shape for a listing takeaway request.
type ListingInput struct {
	ListingID   string           `json:"listing_id,omitempty" yaml:"listing_id"`
	DisplayName string           `json:"display_name,omitempty" yaml:"display_name"`
	Reviews     []content.Review `json:"reviews" yaml:"reviews"`
}

func (in ListingInput) Request() Request {
	return Request{
		Subject:     core.ListingSubject(in.ListingID),
		ContentType: core.ContentReviews,
		Items:       content.Reviews(in.Reviews),
		SubjectName: in.DisplayName,
	}
}

// LocationInput is the wire and file shape for a location takeaway request.
type LocationInput struct {
	Latitude    float64           `json:"latitude" yaml:"latitude"`
	Longitude   float64           `json:"longitude" yaml:"longitude"`
	Radius      float64           `json:"radius" yaml:"radius"`
	DisplayName string            `json:"display_name,omitempty" yaml:"display_name"`
	Insights    []content.Insight `json:"insights" yaml:"insights"`
}

func (in LocationInput) Request() Request {
	return Request{
		Subject:     core.LocationSubject(in.Latitude, in.Longitude, in.Radius),
		ContentType: core.ContentInsights,
		Items:       content.Insights(in.Insights),
		SubjectName: in.DisplayName,
	}
}

// VideoInput is the wire and file shape for a video takeaway request.
type VideoInput struct {
	VideoID     string   `json:"video_id,omitempty" yaml:"video_id"`
	DisplayName string   `json:"display_name,omitempty" yaml:"display_name"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Transcript  string   `json:"transcript" yaml:"transcript"`
	Comments    []string `json:"comments" yaml:"comments"`
}

func (in VideoInput) Request() Request {
	name := in.DisplayName
	if name == "" {
		name = in.Title
	}
	return Request{
		Subject:     core.VideoSubject(in.VideoID),
		ContentType: core.ContentVideos,
		Items:       content.Video(in.Title, in.Description, in.Transcript, in.Comments),
		SubjectName: name,
	}
}
