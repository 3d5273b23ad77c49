package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/render"
)

// fillLoad answers every load field prompt and returns the last reply text.
func fillLoad(h *harness, broker string) string {
	var last string
	for _, answer := range []string{
		"7/10/2023", "08:00-14:00", "07/11/2023", "10:00",
		"Houston, tx", "Atlanta, GA", broker, "L555", "2,500",
		"-", "PU9", "-",
	} {
		last = lastText(h.text(answer))
	}
	return last
}

func TestRateCon_AddNewEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.sheet.SetRow("CompanyA", 3, "07/01/2023", "", "07/02/2023", "", "Chicago, IL", "Dallas, TX", "brokera", "L100")
	h.sheet.Set("CompanyA", "S", 3, "7")
	h.sheet.Set("CompanyA", "T", 3, "ap@brokera.com")
	h.router.distances["Dallas, TX|Houston, TX"] = dec("240")
	h.router.distances["Houston, TX|Atlanta, GA"] = dec("790")

	require.Equal(t, "Rate confirmation:", lastText(h.command("ratecon")))
	h.choose("add new")
	require.Equal(t, "Upload the rate confirmation (PDF).", lastText(h.choose("CompanyA")))
	require.Equal(t, "Sign the rate confirmation?", lastText(h.upload("rc.pdf", samplePDF(t))))

	replies := h.choose("yes")
	require.Equal(t, "Signed.", replies[0].Text)
	require.Contains(t, lastText(replies), "Pickup date")

	require.Contains(t, fillLoad(h, "BrokerA"), "Broker e-mail addresses")

	replies = h.text("Ops@BrokerA.com")
	require.Equal(t, "Added ops@brokera.com (1 total). Send another or /done.", lastText(replies))
	replies = h.text("ops@brokera.com")
	require.Contains(t, lastText(replies), "already on the list")
	h.text("track@brokera.com")
	require.Contains(t, lastText(h.command("done")), "empty time")

	replies = h.text("07/11 14:00")
	require.Len(t, replies, 1)
	r := replies[0]
	require.Contains(t, r.Text, "Load L555 added to CompanyA row 4.")
	require.Contains(t, r.Text, "Miles: 1030, RPM: 2.43, invoice #8")
	require.NotNil(t, r.File)
	require.True(t, render.IsPDF(r.File.Data))
	require.Nil(t, h.session())

	get := func(col string) string { return h.sheet.Get("CompanyA", col, 4) }
	require.Equal(t, "07/10/2023", get("A"))
	require.Equal(t, "08:00-14:00", get("B"))
	require.Equal(t, "07/11/2023", get("C"))
	require.Equal(t, "Houston, TX", get("E"))
	require.Equal(t, "Atlanta, GA", get("F"))
	require.Equal(t, "BrokerA", get("G"))
	require.Equal(t, "L555", get("H"))
	require.Equal(t, "https://drive.test/RC_L555_CompanyA.pdf", get("I"))
	require.Equal(t, "2500.00", get("J"))
	require.Equal(t, "1030", get("K"))
	require.Equal(t, "2.43", get("L"))
	require.Equal(t, "PU#: PU9", get("M"))
	require.Equal(t, "ops@brokera.com, track@brokera.com", get("Q"))
	require.Equal(t, "8", get("S"))
	require.Equal(t, "ap@brokera.com", get("T"))
	require.Equal(t, "20", get("U"))
	require.Equal(t, "07/11 14:00", get("V"))
	require.Equal(t, []string{"CompanyA!4[0:22]"}, h.sheet.Highlighted)
	require.Equal(t, "documents", h.blobs.folders["RC L555 CompanyA.pdf"])
}

func TestRateCon_AccountingMissCollectsCustomer(t *testing.T) {
	h := newHarness(t)

	h.command("ratecon")
	h.choose("add new")
	h.choose("CompanyA")
	h.upload("rc.pdf", samplePDF(t))
	h.choose("no")
	fillLoad(h, "NewBroker")
	h.command("done")

	replies := h.text("now")
	require.Len(t, replies, 2)
	require.Contains(t, replies[0].Text, "Load L555 added to CompanyA row 3.")
	require.Contains(t, replies[0].Text, "invoice #1")
	require.Contains(t, replies[0].Text, "2 legs without mileage")
	require.Equal(t, "No accounting e-mail found for NewBroker. Enter it:", replies[1].Text)
	require.Equal(t, rcAccounting, h.state())
	require.Equal(t, "0", h.sheet.Get("CompanyA", "K", 3))

	replies = h.text("not-an-email")
	require.Contains(t, lastText(replies), "is not an email address")

	replies = h.text("AP@newbroker.com")
	require.Contains(t, lastText(replies), "company info")
	require.Equal(t, "ap@newbroker.com", h.sheet.Get("CompanyA", "T", 3))

	replies = h.text("NewBroker LLC, 5 Elm St, Austin, TX")
	require.Equal(t, "Saved NewBroker as a customer.", lastText(replies))
	require.Nil(t, h.session())
	rec := h.customers.records["newbroker"]
	require.Equal(t, "ap@newbroker.com", rec.AccountingEmail)
	require.Equal(t, "NewBroker LLC, 5 Elm St, Austin, TX", rec.Address)
}

func TestRateCon_CustomerRecordSuppliesAccountingEmail(t *testing.T) {
	h := newHarness(t)
	h.customers.records["knownbroker"] = domain.Customer{Broker: "KnownBroker", AccountingEmail: "billing@known.com"}

	h.command("ratecon")
	h.choose("add new")
	h.choose("CompanyA")
	h.upload("rc.pdf", samplePDF(t))
	h.choose("no")
	fillLoad(h, "KnownBroker")
	h.command("done")
	h.text("now")

	require.Equal(t, "billing@known.com", h.sheet.Get("CompanyA", "T", 3))
	require.Nil(t, h.session())
}

func TestRateCon_FieldValidation(t *testing.T) {
	h := newHarness(t)
	h.command("ratecon")
	h.choose("add new")
	h.choose("CompanyA")
	h.upload("rc.pdf", samplePDF(t))
	h.choose("no")

	require.Contains(t, lastText(h.text("tomorrow")), "is not a date")
	h.text("07/10/2023")
	h.text("08:00")
	h.text("07/11/2023")
	h.text("10:00")
	require.Contains(t, lastText(h.text("Houston")), "is not a location")
	h.text("Houston, TX; Katy, TX")
	h.text("Atlanta, GA")
	h.text("BrokerA")
	h.text("L1")
	require.Contains(t, lastText(h.text("free")), "is not an amount")
	require.Equal(t, rcFieldState("gross"), h.state())
	require.Equal(t, "Houston, TX; Katy, TX", h.session().Field("origin"))
}

func TestRateCon_ViewCurrent(t *testing.T) {
	h := newHarness(t)
	h.sheet.SetRow("CompanyA", 3, "07/01/2023", "08:00", "07/02/2023", "09:00", "Chicago, IL", "Dallas, TX", "BrokerA", "L100", rcLink, "1800", "930", "1.94")
	h.blobs.files[rcLink] = samplePDF(t)

	h.command("ratecon")
	replies := h.choose("view current")
	require.Equal(t, "Whose current load?", lastText(replies))

	replies = h.choose("CompanyA")
	require.Len(t, replies, 1)
	require.Contains(t, replies[0].Text, "CompanyA, row 3\nChicago, IL -> Dallas, TX")
	require.Contains(t, replies[0].Text, "Miles: 930, gross $1800.00, RPM 1.94")
	require.NotNil(t, replies[0].File)
	require.Equal(t, "RC L100.pdf", replies[0].File.Name)
	require.Nil(t, h.session())
}

func TestRateCon_ViewCurrentEmptyLedger(t *testing.T) {
	h := newHarness(t)
	h.command("ratecon")
	h.choose("view current")

	replies := h.choose("OwnerOpX")
	require.Equal(t, "OwnerOpX has no loads yet.", lastText(replies))
}

func TestRateCon_RefreshRows(t *testing.T) {
	h := newHarness(t)
	h.sheet.SetRow("CompanyA", 3, "07/01/2023")
	h.sheet.SetRow("CompanyA", 4, "07/02/2023")

	h.command("ratecon")
	replies := h.choose("refresh rows")
	require.Equal(t, "Append rows:\nCompanyA: 5\nOwnerOpX: 3", lastText(replies))
	require.Nil(t, h.session())
}

func TestNextInvoiceNumber(t *testing.T) {
	require.Equal(t, 8, nextInvoiceNumber("7"))
	require.Equal(t, 13, nextInvoiceNumber("#12"))
	require.Equal(t, 1, nextInvoiceNumber("n/a"))
	require.Equal(t, 1, nextInvoiceNumber(""))
}
