package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Card is an identity-card record as stored in the cards collection.
type Card struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name          string             `json:"name" bson:"name"`
	FatherName    string             `json:"fathername" bson:"fathername"`
	CNIC          string             `json:"cnic" bson:"cnic"` // 13 digits, separators stripped
	DOB           time.Time          `json:"dob" bson:"dob"`
	Address       string             `json:"address" bson:"address"`
	Photo         string             `json:"photo" bson:"photo"` // data:<mime>;base64,...
	Signature     string             `json:"signature,omitempty" bson:"signature,omitempty"`
	Gender        string             `json:"gender" bson:"gender"`
	Religion      string             `json:"religion" bson:"religion"`
	BloodGroup    string             `json:"bloodGroup,omitempty" bson:"bloodGroup,omitempty"`
	MaritalStatus string             `json:"maritalStatus" bson:"maritalStatus"`
	Profession    string             `json:"profession,omitempty" bson:"profession,omitempty"`
	BirthMark     string             `json:"birthMark,omitempty" bson:"birthMark,omitempty"`
	Province      string             `json:"province,omitempty" bson:"province,omitempty"`
	City          string             `json:"city,omitempty" bson:"city,omitempty"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
	Deleted       bool               `json:"-" bson:"deleted"`
	DeletedAt     *time.Time         `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
}

// Upload is a binary image received from a multipart form.
type Upload struct {
	ContentType string
	Data        []byte
}

// CardInput carries the fields of a create request before validation.
type CardInput struct {
	Name          string `json:"name"`
	FatherName    string `json:"fathername"`
	CNIC          string `json:"cnic"`
	DOB           string `json:"dob"`
	Address       string `json:"address"`
	Gender        string `json:"gender"`
	Religion      string `json:"religion"`
	BloodGroup    string `json:"bloodGroup"`
	MaritalStatus string `json:"maritalStatus"`
	Profession    string `json:"profession"`
	BirthMark     string `json:"birthMark"`
	Province      string `json:"province"`
	City          string `json:"city"`
	Photo         string `json:"photo"`
	Signature     string `json:"signature"`

	PhotoUpload     *Upload `json:"-"`
	SignatureUpload *Upload `json:"-"`
}

// CardPatch carries a partial update; nil fields are left untouched.
type CardPatch struct {
	Name          *string `json:"name"`
	FatherName    *string `json:"fathername"`
	CNIC          *string `json:"cnic"`
	DOB           *string `json:"dob"`
	Address       *string `json:"address"`
	Gender        *string `json:"gender"`
	Religion      *string `json:"religion"`
	BloodGroup    *string `json:"bloodGroup"`
	MaritalStatus *string `json:"maritalStatus"`
	Profession    *string `json:"profession"`
	BirthMark     *string `json:"birthMark"`
	Province      *string `json:"province"`
	City          *string `json:"city"`
	Photo         *string `json:"photo"`
	Signature     *string `json:"signature"`

	PhotoUpload     *Upload `json:"-"`
	SignatureUpload *Upload `json:"-"`
}

// CardUpdate is a validated, normalized CardPatch ready for the store.
type CardUpdate struct {
	Name          *string
	FatherName    *string
	CNIC          *string
	DOB           *time.Time
	Address       *string
	Gender        *string
	Religion      *string
	BloodGroup    *string
	MaritalStatus *string
	Profession    *string
	BirthMark     *string
	Province      *string
	City          *string
	Photo         *string
	Signature     *string
	UpdatedAt     time.Time
}
