package source

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/civicworks/precinctbook/pkg/errors"
	"github.com/civicworks/precinctbook/pkg/fixes"
	"github.com/civicworks/precinctbook/pkg/roster"
)

// Collection names used by MongoSource.
const (
	CollectionPolls     = "polls"
	CollectionAddresses = "addresses"
)

// pollDoc is one polling-place assignment document.
type pollDoc struct {
	Ward      int    `bson:"ward"`
	Precinct  int    `bson:"precinct"`
	Location  string `bson:"location"`
	Detail    string `bson:"detail"`
	MatchAddr string `bson:"match_addr"`
}

// addressDoc is one street-address document, already parsed into
// numeric ward/precinct by whatever loaded the database.
type addressDoc struct {
	Number   int    `bson:"number"`
	Street   string `bson:"street"`
	Zip      string `bson:"zip"`
	Ward     int    `bson:"ward"`
	Precinct int    `bson:"precinct"`
}

// MongoSource reads the roster from a MongoDB database with "polls"
// and "addresses" collections.
type MongoSource struct {
	// DB is the database holding the roster collections.
	DB *mongo.Database

	// PollKey selects the poll identity field; default PollKeyLocation.
	PollKey PollKeyMode

	// Fixes is the manual-correction overlay; nil means no fixes.
	Fixes *fixes.Fixes
}

var _ Source = (*MongoSource)(nil)

func (s *MongoSource) fixes() *fixes.Fixes {
	if s.Fixes != nil {
		return s.Fixes
	}
	return &fixes.Fixes{}
}

// Polls reads the precinct-to-polling-place assignment.
func (s *MongoSource) Polls(ctx context.Context) (*PollSet, error) {
	mode := s.PollKey
	if mode == "" {
		mode = PollKeyLocation
	}
	if !mode.Valid() {
		return nil, errors.New(errors.ErrCodeInvalidSource, "unrecognized poll key mode %q", mode)
	}

	cur, err := s.DB.Collection(CollectionPolls).Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSource, err, "query %s", CollectionPolls)
	}
	defer cur.Close(ctx)

	fx := s.fixes()
	set := NewPollSet()
	for cur.Next(ctx) {
		var doc pollDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataMalformed, err, "decode %s document", CollectionPolls)
		}

		name := fx.Location(doc.Ward, doc.Precinct, doc.Location)
		var key string
		switch mode {
		case PollKeyAddress:
			key = fx.MatchAddress(doc.Ward, doc.Precinct, doc.MatchAddr)
		case PollKeyLocation:
			detail := fx.LocationDetail(doc.Ward, doc.Precinct, doc.Detail)
			key = fmt.Sprintf("%s (%s)", name, detail)
		}
		if err := errors.ValidatePollKey(key); err != nil {
			return nil, err
		}

		set.Add(roster.Precinct{Ward: doc.Ward, Number: doc.Precinct}, key, name)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSource, err, "iterate %s", CollectionPolls)
	}
	return set, nil
}

// Addresses reads every street address and its precinct assignment.
// Address documents are expected deduplicated; the per-address fix
// overlay still applies.
func (s *MongoSource) Addresses(ctx context.Context) ([]Address, error) {
	cur, err := s.DB.Collection(CollectionAddresses).Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSource, err, "query %s", CollectionAddresses)
	}
	defer cur.Close(ctx)

	fx := s.fixes()
	var out []Address
	for cur.Next(ctx) {
		var doc addressDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDataMalformed, err, "decode %s document", CollectionAddresses)
		}

		ward, precinct := doc.Ward, doc.Precinct
		if w, p, ok := fx.Address(doc.Number, doc.Street, doc.Zip); ok {
			ward, precinct = w, p
		}
		out = append(out, Address{
			Number:   doc.Number,
			Street:   doc.Street,
			Zip:      doc.Zip,
			Precinct: roster.Precinct{Ward: ward, Number: precinct},
		})
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSource, err, "iterate %s", CollectionAddresses)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Street != b.Street {
			return a.Street < b.Street
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.Zip < b.Zip
	})
	return out, nil
}
