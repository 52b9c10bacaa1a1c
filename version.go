package irma

// Version of the irmareq command and the requestor library
const Version = "0.1.0"
