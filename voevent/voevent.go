// Package voevent models the subset of VOEvent 2.0 packets the feed scrapers
// publish and consume.
package voevent

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"time"
)

// Namespace and schema location of VOEvent 2.0.
const (
	Namespace      = "http://www.ivoa.net/xml/VOEvent/v2.0"
	SchemaLocation = Namespace + " http://www.ivoa.net/xml/VOEvent/VOEvent-v2.0.xsd"
	xsiNamespace   = "http://www.w3.org/2001/XMLSchema-instance"

	// TimeFormat is the ISO-8601 layout used for Who/Date and ISOTime.
	TimeFormat = "2006-01-02T15:04:05"
)

// Role of a packet.
type Role string

// Packet roles.
const (
	RoleObservation Role = "observation"
	RolePrediction  Role = "prediction"
	RoleUtility     Role = "utility"
	RoleTest        Role = "test"
)

// Cite types for Citations/EventIVORN.
const (
	CiteFollowup   = "followup"
	CiteSupersedes = "supersedes"
	CiteRetraction = "retraction"
)

// VOEvent is a single alert packet.
type VOEvent struct {
	XMLName        xml.Name
	XMLNSVoe       string     `xml:"xmlns:voe,attr,omitempty"`
	XMLNSXsi       string     `xml:"xmlns:xsi,attr,omitempty"`
	SchemaLocation string     `xml:"xsi:schemaLocation,attr,omitempty"`
	IVORN          string     `xml:"ivorn,attr"`
	Role           Role       `xml:"role,attr"`
	Version        string     `xml:"version,attr"`
	Who            *Who       `xml:"Who,omitempty"`
	What           *What      `xml:"What,omitempty"`
	WhereWhen      *WhereWhen `xml:"WhereWhen,omitempty"`
	How            *How       `xml:"How,omitempty"`
	Citations      *Citations `xml:"Citations,omitempty"`
	Description    string     `xml:"Description,omitempty"`
}

// Who identifies the packet author.
type Who struct {
	AuthorIVORN string  `xml:"AuthorIVORN,omitempty"`
	Date        string  `xml:"Date,omitempty"`
	Author      *Author `xml:"Author,omitempty"`
}

// Author holds the contact details published in every packet.
type Author struct {
	Title        string `xml:"title,omitempty" yaml:"title"`
	ShortName    string `xml:"shortName,omitempty" yaml:"short_name"`
	ContactName  string `xml:"contactName,omitempty" yaml:"contact_name"`
	ContactEmail string `xml:"contactEmail,omitempty" yaml:"contact_email"`
}

// What carries the event parameters.
type What struct {
	Params      []Param `xml:"Param"`
	Groups      []Group `xml:"Group"`
	Description string  `xml:"Description,omitempty"`
}

// Param is a named value.
type Param struct {
	Name        string `xml:"name,attr"`
	Value       string `xml:"value,attr"`
	Unit        string `xml:"unit,attr,omitempty"`
	UCD         string `xml:"ucd,attr,omitempty"`
	DataType    string `xml:"dataType,attr,omitempty"`
	Description string `xml:"Description,omitempty"`
}

// Group is a named set of params.
type Group struct {
	Name        string  `xml:"name,attr,omitempty"`
	Type        string  `xml:"type,attr,omitempty"`
	Params      []Param `xml:"Param"`
	Description string  `xml:"Description,omitempty"`
}

// WhereWhen holds the observation position and time.
type WhereWhen struct {
	ObsDataLocation ObsDataLocation `xml:"ObsDataLocation"`
	Description     string          `xml:"Description,omitempty"`
}

// ObsDataLocation wraps observatory and observation locations.
type ObsDataLocation struct {
	ObservatoryLocation IDRef               `xml:"ObservatoryLocation"`
	ObservationLocation ObservationLocation `xml:"ObservationLocation"`
}

// IDRef is an element carrying only an id attribute.
type IDRef struct {
	ID string `xml:"id,attr"`
}

// ObservationLocation holds the coordinate system and coordinates.
type ObservationLocation struct {
	AstroCoordSystem IDRef       `xml:"AstroCoordSystem"`
	AstroCoords      AstroCoords `xml:"AstroCoords"`
}

// AstroCoords is the time and sky position of the observation.
type AstroCoords struct {
	CoordSystemID string      `xml:"coord_system_id,attr"`
	Time          *Time       `xml:"Time,omitempty"`
	Position2D    *Position2D `xml:"Position2D,omitempty"`
}

// Time is an ISO time instant.
type Time struct {
	Unit    string `xml:"unit,attr,omitempty"`
	ISOTime string `xml:"TimeInstant>ISOTime"`
}

// Position2D is an equatorial position in degrees.
type Position2D struct {
	Unit        string  `xml:"unit,attr"`
	Name1       string  `xml:"Name1"`
	Name2       string  `xml:"Name2"`
	C1          float64 `xml:"Value2>C1"`
	C2          float64 `xml:"Value2>C2"`
	ErrorRadius float64 `xml:"Error2Radius"`
}

// How describes the instrument or method.
type How struct {
	Description []string    `xml:"Description,omitempty"`
	References  []Reference `xml:"Reference,omitempty"`
}

// Reference is an external link.
type Reference struct {
	URI     string `xml:"uri,attr"`
	Type    string `xml:"type,attr,omitempty"`
	Meaning string `xml:"meaning,attr,omitempty"`
}

// Citations links this packet to earlier ones.
type Citations struct {
	EventIVORNs []EventIVORN `xml:"EventIVORN"`
	Description string       `xml:"Description,omitempty"`
}

// EventIVORN is a single citation.
type EventIVORN struct {
	Cite  string `xml:"cite,attr"`
	IVORN string `xml:",chardata"`
}

// Position is a sky position with an error circle, all in degrees.
type Position struct {
	RA, Dec, Err float64
}

// New creates an empty packet with the Who section filled in.
func New(ivorn string, role Role, author Author, authorIVORN string, now time.Time) *VOEvent {
	a := author
	return &VOEvent{
		IVORN:   ivorn,
		Role:    role,
		Version: "2.0",
		Who: &Who{
			AuthorIVORN: authorIVORN,
			Date:        now.UTC().Format(TimeFormat),
			Author:      &a,
		},
	}
}

// SetWhereWhen sets the observation time and ICRS position.
func (v *VOEvent) SetWhereWhen(pos Position, t time.Time) {
	v.WhereWhen = &WhereWhen{
		ObsDataLocation: ObsDataLocation{
			ObservatoryLocation: IDRef{ID: "GEOLUN"},
			ObservationLocation: ObservationLocation{
				AstroCoordSystem: IDRef{ID: "UTC-FK5-GEO"},
				AstroCoords: AstroCoords{
					CoordSystemID: "UTC-FK5-GEO",
					Time:          &Time{Unit: "s", ISOTime: t.UTC().Format(TimeFormat)},
					Position2D: &Position2D{
						Unit:        "deg",
						Name1:       "RA",
						Name2:       "Dec",
						C1:          pos.RA,
						C2:          pos.Dec,
						ErrorRadius: pos.Err,
					},
				},
			},
		},
	}
}

// AddParams appends top-level params.
func (v *VOEvent) AddParams(params ...Param) {
	if v.What == nil {
		v.What = &What{}
	}
	v.What.Params = append(v.What.Params, params...)
}

// AddGroup appends a named group of params.
func (v *VOEvent) AddGroup(name string, params ...Param) {
	if v.What == nil {
		v.What = &What{}
	}
	v.What.Groups = append(v.What.Groups, Group{Name: name, Params: params})
}

// AddCitation cites an earlier packet.
func (v *VOEvent) AddCitation(ivorn, cite string) {
	if v.Citations == nil {
		v.Citations = &Citations{}
	}
	v.Citations.EventIVORNs = append(v.Citations.EventIVORNs, EventIVORN{Cite: cite, IVORN: ivorn})
}

// AddReference adds a How/Reference link.
func (v *VOEvent) AddReference(uri, meaning string) {
	if v.How == nil {
		v.How = &How{}
	}
	v.How.References = append(v.How.References, Reference{URI: uri, Type: "url", Meaning: meaning})
}

// Param looks up a parameter value. An empty group searches the top level.
func (v *VOEvent) Param(group, name string) (string, bool) {
	if v.What == nil {
		return "", false
	}
	if group == "" {
		return findParam(v.What.Params, name)
	}
	for _, g := range v.What.Groups {
		if g.Name == group {
			return findParam(g.Params, name)
		}
	}
	return "", false
}

func findParam(params []Param, name string) (string, bool) {
	for _, p := range params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// ObservationTime returns the parsed ISOTime of the WhereWhen section.
func (v *VOEvent) ObservationTime() (time.Time, error) {
	if v.WhereWhen == nil || v.WhereWhen.ObsDataLocation.ObservationLocation.AstroCoords.Time == nil {
		return time.Time{}, errors.New("packet has no observation time")
	}
	raw := v.WhereWhen.ObsDataLocation.ObservationLocation.AstroCoords.Time.ISOTime
	for _, layout := range []string{TimeFormat + ".999999999", time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised ISOTime %q", raw)
}

// Marshal renders the packet as an XML document.
func Marshal(v *VOEvent) ([]byte, error) {
	out := *v
	out.XMLName = xml.Name{Local: "voe:VOEvent"}
	out.XMLNSVoe = Namespace
	out.XMLNSXsi = xsiNamespace
	out.SchemaLocation = SchemaLocation

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("encode voevent: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Parse decodes a packet. Only the fields modelled here are kept.
func Parse(data []byte) (*VOEvent, error) {
	var v VOEvent
	if err := xml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode voevent: %w", err)
	}
	if v.XMLName.Local != "VOEvent" && v.XMLName.Local != "voe:VOEvent" {
		return nil, fmt.Errorf("unexpected root element %q", v.XMLName.Local)
	}
	if v.IVORN == "" {
		return nil, errors.New("packet has no ivorn")
	}
	return &v, nil
}
