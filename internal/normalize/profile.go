package normalize

// Profile lists, per canonical field, the accessors tried in order. The first
// present, non-blank value wins.
type Profile struct {
	Name          string
	ExternalID    []Accessor
	Price         []Accessor
	Address       []Accessor
	City          []Accessor
	Latitude      []Accessor
	Longitude     []Accessor
	ImageURL      []Accessor
	Status        []Accessor
	Beds          []Accessor
	Baths         []Accessor
	Sqft          []Accessor
	Photos        []Accessor
	DefaultStatus string
}

// SimplyRETS covers both the v1 properties payload and the older mlsId-only
// variant.
func SimplyRETS() Profile {
	return Profile{
		Name:       "simplyrets",
		ExternalID: fields("listingId", "mlsId", "mls.id"),
		Price:      fields("listPrice"),
		Address: []Accessor{
			Field("address.full"),
			Join(" ", "address.streetNumber", "address.streetName"),
		},
		City:      fields("address.city"),
		Latitude:  fields("geo.lat"),
		Longitude: fields("geo.lng"),
		ImageURL:  fields("photos.0"),
		Status:    fields("mls.status"),
		Beds:      fields("property.bedrooms"),
		Baths: []Accessor{
			Field("property.bathrooms"),
			HalfBaths("property.bathsFull", "property.bathsHalf"),
		},
		Sqft:          fields("property.area"),
		Photos:        fields("photos"),
		DefaultStatus: "for-sale",
	}
}

func Repliers() Profile {
	return Profile{
		Name:       "repliers",
		ExternalID: fields("Id", "ListingId", "MlsNumber", "mlsNumber"),
		Price:      fields("ListPrice", "listPrice"),
		Address:    fields("Address.UnparsedAddress", "address.unparsedAddress", "address.full"),
		City:       fields("Address.City", "address.city"),
		Latitude:   fields("Latitude", "map.latitude"),
		Longitude:  fields("Longitude", "map.longitude"),
		ImageURL:   fields("Photos.0", "images.0"),
		Status:     fields("Status", "status"),
		Beds:       fields("BedroomsTotal", "details.numBedrooms"),
		Baths:      fields("BathroomsTotalInteger", "details.numBathrooms"),
		Sqft:       fields("Building.SizeInterior", "details.sqft"),
		Photos:     fields("Photos", "images"),
	}
}

// Feed matches the flat app-listings feed shape.
func Feed() Profile {
	return Profile{
		Name:       "feed",
		ExternalID: fields("mls_id", "mlsId", "id"),
		Price:      fields("list_price", "price"),
		Address:    fields("address", "full_address"),
		City:       fields("city"),
		Latitude:   fields("latitude", "lat"),
		Longitude:  fields("longitude", "lon", "lng"),
		ImageURL:   fields("cover_image_url", "image_url"),
		Status:     fields("status", "status_raw"),
		Beds:       fields("beds", "bedrooms"),
		Baths:      fields("baths", "bathrooms"),
		Sqft:       fields("sqft", "living_area"),
		Photos:     fields("photos"),
		// The feed maps to map search, so it carries a status even when absent.
		DefaultStatus: "for-sale",
	}
}

// ProfileFor returns the profile registered for a source id.
func ProfileFor(sourceID string) (Profile, bool) {
	switch sourceID {
	case "simplyrets":
		return SimplyRETS(), true
	case "repliers":
		return Repliers(), true
	case "feed":
		return Feed(), true
	}
	return Profile{}, false
}
