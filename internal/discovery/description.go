package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxDescriptionSize = 1 << 20

type deviceDescription struct {
	Device struct {
		FriendlyName string `xml:"friendlyName"`
		Manufacturer string `xml:"manufacturer"`
		ModelName    string `xml:"modelName"`
		SerialNumber string `xml:"serialNumber"`
		UDN          string `xml:"UDN"`
	} `xml:"device"`
}

// fetchDescription downloads and parses the UPnP description at location.
func (s *Searcher) fetchDescription(ctx context.Context, location string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescription, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescription, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrDescription, location, resp.Status)
	}
	return parseDescription(io.LimitReader(resp.Body, maxDescriptionSize))
}

// parseDescription reads the root device of a UPnP description document.
// Empty elements are left out of the result.
func parseDescription(r io.Reader) (map[string]string, error) {
	var doc deviceDescription
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDescription, err)
	}

	attrs := make(map[string]string, 5)
	for k, v := range map[string]string{
		AttrFriendlyName: doc.Device.FriendlyName,
		AttrManufacturer: doc.Device.Manufacturer,
		AttrModelName:    doc.Device.ModelName,
		AttrSerialNumber: doc.Device.SerialNumber,
		AttrUDN:          doc.Device.UDN,
	} {
		if v = strings.TrimSpace(v); v != "" {
			attrs[k] = v
		}
	}
	return attrs, nil
}
