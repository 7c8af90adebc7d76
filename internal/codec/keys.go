package codec

// Wire keys
const (
	keyHref           = "href"
	keyProperties     = "prop"
	keyResourceType   = "rt"
	keyInterface      = "if"
	keyRepresentation = "rep"

	keyDeviceID = "di"
	keyLinks    = "links"
	keyPolicy   = "p"
	keyBitmap   = "bm"
	keySecure   = "sec"
	keyPort     = "port"
	keyName     = "n"
	keyTTL      = "ttl"
	keyRelation = "rel"
	keyInstance = "ins"

	keyNonce   = "non"
	keyTrigger = "trg"

	keySpecVersion      = "icv"
	keyDataModelVersion = "dmv"

	keyPlatformID        = "pi"
	keyManufacturer      = "mnmn"
	keyManufacturerURL   = "mnml"
	keyModelNumber       = "mnmo"
	keyDateOfManufacture = "mndt"
	keyPlatformVersion   = "mnpv"
	keyOSVersion         = "mnos"
	keyHardwareVersion   = "mnhw"
	keyFirmwareVersion   = "mnfv"
	keySupportURL        = "mnsl"
	keySystemTime        = "st"
)

// deviceIDLen is the size of the identity byte string
const deviceIDLen = 16
