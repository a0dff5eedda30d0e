package probe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// imageFetchConcurrency bounds parallel image downloads within one run.
const imageFetchConcurrency = 4

// exifImagePattern matches the image formats that carry EXIF metadata.
var exifImagePattern = regexp.MustCompile(`(?i)\.(jpe?g|tiff?|heic)(?:\?.*)?$`)

// ImageForensics downloads the images of a domain's page and extracts
// their EXIF metadata: GPS position, camera and editing software.
type ImageForensics struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	maxImages   int
	logger      *slog.Logger
}

// NewImageForensics creates the Image Forensics probe.
func NewImageForensics(opts Options) *ImageForensics {
	opts = opts.withDefaults()
	return &ImageForensics{
		client:      opts.HTTPClient,
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
		maxImages:   opts.MaxImages,
		logger:      opts.Logger,
	}
}

// Name implements module.Module.
func (*ImageForensics) Name() string { return NameImageForensics }

// Description implements module.Module.
func (*ImageForensics) Description() string {
	return "Extracts EXIF GPS, camera and software metadata from a site's images"
}

// InputTypes implements module.Module.
func (*ImageForensics) InputTypes() []string { return []string{model.InputDomain} }

// imageReport is the EXIF summary of one image.
type imageReport struct {
	URL      string
	Tags     map[string]string
	Lat, Lon float64
	HasGPS   bool
	Device   string
	Software string
}

// Run implements module.Module.
//
// Images that cannot be downloaded or carry no EXIF data are reported
// without metadata; only a failure to fetch the page fails the run.
func (f *ImageForensics) Run(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
	report := reporter(progress)

	name, pageURL, err := pageTarget(target)
	if err != nil {
		return nil, nil, err
	}

	resp, err := fetch(ctx, f.client, pageURL, f.userAgent, f.maxBodySize)
	if err != nil {
		return nil, nil, err
	}
	base, err := url.Parse(resp.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page URL %q: %w", resp.URL, err)
	}
	doc, err := parsePage(base, bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", resp.URL, err)
	}

	images := selectImages(doc.Images, min(f.maxImages, target.EffectiveLimit()))
	total := len(images) + 1
	report(1, total)

	reports := make([]imageReport, len(images))
	var (
		mu   sync.Mutex
		done = 1
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageFetchConcurrency)
	for i, img := range images {
		g.Go(func() error {
			reports[i] = f.inspect(gctx, img)
			mu.Lock()
			done++
			report(done, total)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // inspect never fails the group

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	domain := model.NewEntity(model.EntityDomain, name).WithAttribute("source", "input")
	pageEntity := model.NewEntity(model.EntityURL, resp.URL)
	entities := []model.Entity{domain, pageEntity}
	relations := []model.Relation{model.NewRelation(domain, pageEntity, "hosts_page")}

	for _, r := range reports {
		img := model.NewEntity(model.EntityImage, r.URL).WithAttribute("exif_tags", len(r.Tags))
		for k, v := range r.Tags {
			img = img.WithAttribute("exif_"+strings.ToLower(k), v)
		}
		entities = append(entities, img)
		relations = append(relations, model.NewRelation(pageEntity, img, "contains_image"))

		if r.HasGPS {
			loc := model.NewEntity(model.EntityLocation, formatCoordinates(r.Lat, r.Lon)).
				WithAttribute("latitude", r.Lat).
				WithAttribute("longitude", r.Lon).
				WithAttribute("source", "exif")
			entities = append(entities, loc)
			relations = append(relations, model.NewRelation(img, loc, "geolocated_at"))
		}
		if r.Device != "" {
			dev := model.NewEntity(model.EntityDevice, r.Device).WithAttribute("source", "exif")
			entities = append(entities, dev)
			relations = append(relations, model.NewRelation(img, dev, "captured_with"))
		}
		if r.Software != "" {
			sw := model.NewEntity(model.EntitySoftware, r.Software).WithAttribute("source", "exif")
			entities = append(entities, sw)
			relations = append(relations, model.NewRelation(img, sw, "edited_with"))
		}
	}

	return entities, relations, nil
}

// inspect downloads one image and summarizes its EXIF data.
func (f *ImageForensics) inspect(ctx context.Context, imageURL string) imageReport {
	r := imageReport{URL: imageURL}

	resp, err := fetch(ctx, f.client, imageURL, f.userAgent, f.maxBodySize)
	if err != nil {
		f.logger.Debug("failed to fetch image", "url", imageURL, "error", err)
		return r
	}

	raw, err := exif.SearchAndExtractExif(resp.Body)
	if err != nil || raw == nil {
		return r
	}
	entries, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		f.logger.Debug("failed to parse exif", "url", imageURL, "error", err)
		return r
	}
	return summarizeExif(imageURL, entries)
}

// summarizeExif extracts the tags of interest from flat EXIF entries.
func summarizeExif(imageURL string, entries []exif.ExifTag) imageReport {
	r := imageReport{URL: imageURL, Tags: make(map[string]string)}

	var (
		lat, lon          []exifcommon.Rational
		latRef, lonRef    string
		camMake, camModel string
	)
	for _, e := range entries {
		switch e.TagName {
		case "GPSLatitude":
			lat, _ = e.Value.([]exifcommon.Rational)
		case "GPSLongitude":
			lon, _ = e.Value.([]exifcommon.Rational)
		case "GPSLatitudeRef":
			latRef = strings.TrimSpace(e.Formatted)
		case "GPSLongitudeRef":
			lonRef = strings.TrimSpace(e.Formatted)
		case "Make":
			camMake = strings.TrimSpace(e.Formatted)
			r.Tags[e.TagName] = camMake
		case "Model":
			camModel = strings.TrimSpace(e.Formatted)
			r.Tags[e.TagName] = camModel
		case "Software", "Artist", "Copyright", "DateTimeOriginal", "BodySerialNumber", "CameraOwnerName", "HostComputer":
			r.Tags[e.TagName] = strings.TrimSpace(e.Formatted)
		}
	}

	if la, ok := gpsDecimal(lat, latRef); ok {
		if lo, ok := gpsDecimal(lon, lonRef); ok {
			r.Lat, r.Lon, r.HasGPS = la, lo, true
		}
	}
	r.Device = camModel
	if camMake != "" && !strings.HasPrefix(camModel, camMake) {
		r.Device = strings.TrimSpace(camMake + " " + camModel)
	}
	r.Software = r.Tags["Software"]
	return r
}

// gpsDecimal converts degrees, minutes and seconds to signed decimal
// degrees. ref "S" or "W" makes the result negative.
func gpsDecimal(dms []exifcommon.Rational, ref string) (float64, bool) {
	if len(dms) != 3 {
		return 0, false
	}
	var parts [3]float64
	for i, r := range dms {
		if r.Denominator == 0 {
			return 0, false
		}
		parts[i] = float64(r.Numerator) / float64(r.Denominator)
	}
	v := parts[0] + parts[1]/60 + parts[2]/3600
	if ref == "S" || ref == "W" {
		v = -v
	}
	return v, true
}

func formatCoordinates(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lon, 'f', 6, 64)
}

// selectImages returns up to limit distinct http(s) image URLs in formats
// that can carry EXIF.
func selectImages(images []string, limit int) []string {
	var out []string
	for _, img := range images {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !strings.HasPrefix(img, "http://") && !strings.HasPrefix(img, "https://") {
			continue
		}
		if exifImagePattern.MatchString(img) {
			out = append(out, img)
		}
	}
	return out
}
