package rerx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBatch() *Batch {
	return &Batch{
		FormTypeCode:  FormTypeCode,
		ActivityCount: 1,
		Activities: []Activity{{
			SeqNum:         1,
			FilingDateText: "20260201",
			Association:    ActivityAssociation{InitialReportIndicator: IndicatorYes},
			Parties: []Party{
				{
					SeqNum:   2,
					TypeCode: PartyTypeTransferee,
					Name:     PartyName{RawIndividualFirstName: "Avery", RawIndividualLastName: "Stone"},
					Identifications: []PartyIdentification{
						{TypeCode: IDTypeSSN, NumberText: "123456789"},
					},
					Address: &PartyAddress{RawCityText: "Portland", RawZIPCode: "04101"},
				},
				{
					SeqNum:       3,
					TypeCode:     PartyTypeTransfereeAssoc,
					ParentSeqNum: 2,
					Name:         PartyName{RawIndividualFirstName: "Mara", RawIndividualLastName: "Quill"},
				},
			},
			Asset: Asset{SeqNum: 4, Address: PartyAddress{RawCityText: "Portland"}},
			ValueTransfer: ValueTransfer{
				SeqNum:          5,
				TotalAmountText: "425000",
				Details: []ValueTransferDetail{{
					SeqNum:            6,
					AmountText:        "425000",
					PaymentMethodCode: "wire",
					Institution: &Party{
						SeqNum:   7,
						TypeCode: PartyTypeInstitution,
						Name:     PartyName{RawPartyFullName: "First Coastal Bank"},
					},
				}},
			},
		}},
	}
}

func TestMarshalShape(t *testing.T) {
	data, err := sampleBatch().Marshal()
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "<?xml"), "document must start with the XML header")
	assert.Contains(t, text, `<RERXBatch FormTypeCode="RERX" ActivityCount="1">`)
	assert.Contains(t, text, `<Activity SeqNum="1">`)
	assert.Contains(t, text, "<ActivityPartyTypeCode>63</ActivityPartyTypeCode>")
	assert.Contains(t, text, "<AssociatedPartySeqNum>2</AssociatedPartySeqNum>")
	assert.NotContains(t, text, "<RawPartyFullName></RawPartyFullName>",
		"empty optional elements must be omitted")
	assert.NotContains(t, text, "CorrectsAmendsIndicator")
}

func TestMarshalParseRoundTrip(t *testing.T) {
	original := sampleBatch()
	data, err := original.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, parsed.Activities, 1)

	activity := parsed.Activities[0]
	assert.Equal(t, int64(1), activity.SeqNum)
	assert.Equal(t, "20260201", activity.FilingDateText)

	buyers := activity.PartiesByType(PartyTypeTransferee)
	require.Len(t, buyers, 1)
	assert.Equal(t, "Stone", buyers[0].Name.RawIndividualLastName)
	assert.Equal(t, int64(2), buyers[0].SeqNum)

	require.Len(t, activity.ValueTransfer.Details, 1)
	require.NotNil(t, activity.ValueTransfer.Details[0].Institution)
	assert.Equal(t, "First Coastal Bank", activity.ValueTransfer.Details[0].Institution.Name.RawPartyFullName)
}

func TestParseRejectsMalformedXML(t *testing.T) {
	_, err := Parse([]byte("<RERXBatch><Activity></RERXBatch>"))
	require.Error(t, err)
}

func TestPartiesByType(t *testing.T) {
	activity := &sampleBatch().Activities[0]
	assert.Len(t, activity.PartiesByType(PartyTypeTransferee), 1)
	assert.Len(t, activity.PartiesByType(PartyTypeTransfereeAssoc), 1)
	assert.Empty(t, activity.PartiesByType(PartyTypeTransferor))
}
