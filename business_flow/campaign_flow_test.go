package businessflow

import (
	"bytes"
	"context"
	"testing"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNormalizeRecipients(t *testing.T) {
	t.Run("CanonicalizesAndDedupes", func(t *testing.T) {
		out := normalizeRecipients([]string{
			"+98 912 123 4567",
			"989121234567",
			"(98) 935-000-1122",
			"",
			"123",
		})
		assert.Equal(t, []string{"989121234567", "989350001122"}, out)
	})

	t.Run("PreservesFirstSeenOrder", func(t *testing.T) {
		out := normalizeRecipients([]string{"989350001122", "989121234567", "+989350001122"})
		assert.Equal(t, []string{"989350001122", "989121234567"}, out)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, normalizeRecipients(nil))
	})
}

func TestValidatePagination(t *testing.T) {
	assert.NoError(t, validatePagination(1, 20))
	assert.NoError(t, validatePagination(100, 100))

	assert.True(t, IsInvalidPage(validatePagination(0, 20)))
	assert.True(t, IsInvalidPage(validatePagination(-1, 20)))
	assert.True(t, IsInvalidPageSize(validatePagination(1, 0)))
	assert.True(t, IsInvalidPageSize(validatePagination(1, 101)))
}

func TestCreateCampaignRequiresRecipientsWhenEnqueued(t *testing.T) {
	flow := NewCampaignFlow(nil, nil, nil, nil, nil, nil)

	req := &dto.CreateCampaignRequest{
		VendorID:     1,
		Name:         "spring-promo",
		TemplateName: "promo_template",
		Enqueue:      true,
		Recipients:   []string{"", "12"},
	}
	resp, err := flow.CreateCampaign(context.Background(), req, NewClientMetadata("127.0.0.1", "test"))
	assert.Nil(t, resp)
	assert.True(t, IsCampaignRecipientsRequired(err))
}

// buildSpreadsheet writes rows into the first sheet of an in-memory workbook
func buildSpreadsheet(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	for i, row := range rows {
		for j, cell := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, book.SetCellValue(sheet, name, cell))
		}
	}
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestImportRecipients(t *testing.T) {
	flow := NewCampaignFlow(nil, nil, nil, nil, nil, nil)

	t.Run("HeaderedPhoneColumn", func(t *testing.T) {
		buf := buildSpreadsheet(t, [][]string{
			{"name", "Phone"},
			{"Sara", "+98 912 123 4567"},
			{"Omid", "989350001122"},
			{"NoPhone", ""},
		})
		recipients, err := flow.ImportRecipients(context.Background(), buf)
		require.NoError(t, err)
		assert.Equal(t, []string{"989121234567", "989350001122"}, recipients)
	})

	t.Run("HeaderlessFirstColumn", func(t *testing.T) {
		buf := buildSpreadsheet(t, [][]string{
			{"989121234567"},
			{"+98 935 000 1122"},
		})
		recipients, err := flow.ImportRecipients(context.Background(), buf)
		require.NoError(t, err)
		assert.Equal(t, []string{"989121234567", "989350001122"}, recipients)
	})

	t.Run("DedupesAcrossRows", func(t *testing.T) {
		buf := buildSpreadsheet(t, [][]string{
			{"phone"},
			{"989121234567"},
			{"+989121234567"},
		})
		recipients, err := flow.ImportRecipients(context.Background(), buf)
		require.NoError(t, err)
		assert.Equal(t, []string{"989121234567"}, recipients)
	})

	t.Run("NotASpreadsheet", func(t *testing.T) {
		_, err := flow.ImportRecipients(context.Background(), bytes.NewBufferString("plain text"))
		assert.Error(t, err)
	})
}
