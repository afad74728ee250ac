package backend

// MovieDocument is the remote wire shape of a movie. It carries no sync state;
// from the remote's point of view every document is synced.
type MovieDocument struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	PosterURL     string   `json:"posterUrl,omitempty"`
	BackdropURL   string   `json:"backdropUrl,omitempty"`
	ReleaseDate   string   `json:"releaseDate,omitempty"`
	Overview      string   `json:"overview,omitempty"`
	IsSeen        bool     `json:"isSeen"`
	IsWatchlist   bool     `json:"isWatchlist"`
	IsFavorite    bool     `json:"isFavorite"`
	Rating        *float64 `json:"rating"`
	AIReason      *string  `json:"aiReason"`
	NotInterested bool     `json:"notInterested"`
	AddedAt       int64    `json:"addedAt"`
	LastModified  int64    `json:"lastModified"`
}

// ToDocument converts a local record into its wire form.
func ToDocument(r MovieRecord) MovieDocument {
	r = r.Clone()
	return MovieDocument{
		ID:            r.ID,
		Title:         r.Title,
		PosterURL:     r.PosterURL,
		BackdropURL:   r.BackdropURL,
		ReleaseDate:   r.ReleaseDate,
		Overview:      r.Overview,
		IsSeen:        r.IsSeen,
		IsWatchlist:   r.IsWatchlist,
		IsFavorite:    r.IsFavorite,
		Rating:        r.Rating,
		AIReason:      r.AIReason,
		NotInterested: r.NotInterested,
		AddedAt:       ToMillis(r.AddedAt),
		LastModified:  ToMillis(r.LastModified),
	}
}

// Record converts a document read from the remote into a local record tagged SYNCED.
func (d MovieDocument) Record() MovieRecord {
	return MovieRecord{
		ID:            d.ID,
		Title:         d.Title,
		PosterURL:     d.PosterURL,
		BackdropURL:   d.BackdropURL,
		ReleaseDate:   d.ReleaseDate,
		Overview:      d.Overview,
		IsSeen:        d.IsSeen,
		IsWatchlist:   d.IsWatchlist,
		IsFavorite:    d.IsFavorite,
		Rating:        cloneFloat(d.Rating),
		AIReason:      d.AIReason,
		NotInterested: d.NotInterested,
		AddedAt:       FromMillis(d.AddedAt),
		LastModified:  FromMillis(d.LastModified),
		SyncState:     SyncSynced,
	}
}

// ProfileDocument is the remote wire shape of a user profile.
type ProfileDocument struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
	Credits     int    `json:"credits"`
	CreatedAt   int64  `json:"createdAt"`
	LastUpdated int64  `json:"lastUpdated"`
}

// ToProfileDocument converts a profile into its wire form.
func ToProfileDocument(p UserProfile) ProfileDocument {
	return ProfileDocument{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		Credits:     p.Credits,
		CreatedAt:   ToMillis(p.CreatedAt),
		LastUpdated: ToMillis(p.LastUpdated),
	}
}

// Profile converts the wire form back into a profile.
func (d ProfileDocument) Profile() UserProfile {
	return UserProfile{
		ID:          d.ID,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		PhotoURL:    d.PhotoURL,
		Credits:     d.Credits,
		CreatedAt:   FromMillis(d.CreatedAt),
		LastUpdated: FromMillis(d.LastUpdated),
	}
}

// CreditDelta is the body of a credit adjustment request.
type CreditDelta struct {
	Delta int `json:"delta"`
}
