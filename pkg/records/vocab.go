package records

// Well-known properties used by the normalizer, reference builder and the
// merge engine.
const (
	PropGenre            PropertyID = "P136"
	PropAudience         PropertyID = "P2360"
	PropStartTime        PropertyID = "P580"
	PropEndTime          PropertyID = "P582"
	PropNumberOfParts    PropertyID = "P2635"
	PropDescribedAtURL   PropertyID = "P973"
	PropLanguage         PropertyID = "P407"
	PropCountryOfOrigin  PropertyID = "P495"
	PropOriginalLanguage PropertyID = "P364"
	PropTitle            PropertyID = "P1476"
	PropHashtag          PropertyID = "P2572"
	PropOfficialWebsite  PropertyID = "P856"
	PropArchiveURL       PropertyID = "P1065"
	PropArchiveDate      PropertyID = "P2960"
	PropRetrieved        PropertyID = "P813"
	PropStatedIn         PropertyID = "P248"
	PropReferenceURL     PropertyID = "P854"
	PropDeprecatedReason PropertyID = "P2241"
	PropNiconicoID       PropertyID = "P11053"
	PropBookWalkerID     PropertyID = "P11259"
)

// Well-known items.
const (
	ItemVolume         ItemID = "Q1238720"
	ItemWithdrawnID    ItemID = "Q21441764"
	ItemRomance        ItemID = "Q15637310"
	ItemComedy         ItemID = "Q15286013"
	ItemDrama          ItemID = "Q15637299"
	ItemRomanticComedy ItemID = "Q15712145"
	ItemComedyDrama    ItemID = "Q15712927"
	ItemEnglish        ItemID = "Q1860"
	ItemJapanese       ItemID = "Q5287"
)
