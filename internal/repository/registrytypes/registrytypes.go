package registrytypes

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var UUIDType = reflect.TypeOf(uuid.UUID{})

// UuidEncodeValue writes a uuid.UUID as a BSON binary with the UUID subtype.
func UuidEncodeValue(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != UUIDType {
		return bsoncodec.ValueEncoderError{Name: "UuidEncodeValue", Types: []reflect.Type{UUIDType}, Received: val}
	}
	id := val.Interface().(uuid.UUID)
	return vw.WriteBinaryWithSubtype(id[:], bsontype.BinaryUUID)
}

// UuidDecodeValue reads a BSON binary UUID back into a uuid.UUID.
func UuidDecodeValue(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != UUIDType {
		return bsoncodec.ValueDecoderError{Name: "UuidDecodeValue", Types: []reflect.Type{UUIDType}, Received: val}
	}

	var data []byte
	var subtype byte
	var err error

	switch vrType := vr.Type(); vrType {
	case bsontype.Binary:
		data, subtype, err = vr.ReadBinary()
		if err == nil && subtype != bsontype.BinaryUUID {
			return fmt.Errorf("unsupported binary subtype 0x%02x for UUID", subtype)
		}
	case bsontype.Null:
		err = vr.ReadNull()
	case bsontype.Undefined:
		err = vr.ReadUndefined()
	default:
		return fmt.Errorf("cannot decode %v into a UUID", vrType)
	}
	if err != nil {
		return err
	}

	if len(data) == 0 {
		val.Set(reflect.ValueOf(uuid.UUID{}))
		return nil
	}

	id, err := uuid.FromBytes(data)
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(id))
	return nil
}
